package gambit

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/analysiscache"
	"github.com/discochess/gambit/internal/builder"
	"github.com/discochess/gambit/internal/engine"
	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/ledger"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/selector"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/tablebase"
)

// Option configures an Orchestrator.
type Option interface {
	apply(*options)
}

// options holds the orchestrator configuration.
type options struct {
	engine    engine.Searcher
	book      repertoire.Book
	tablebase tablebase.Prober
	journal   journal.Journal
	ledger    *ledger.Ledger
	analyses  *analysiscache.Cache
	policy    selector.Policy
	rng       selector.Rand
	sessionID string
	manifest  *builder.Manifest
	dataDir   string
	stats     stats.Collector
	logger    *zap.Logger
	now       func() time.Time
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		policy: selector.DefaultPolicy(),
		stats:  stats.NewNoop(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithEngine sets the search engine. The Orchestrator takes ownership and
// closes it on Close. Without an engine only the endgame database and the
// repertoire are consulted.
func WithEngine(e engine.Searcher) Option {
	return optionFunc(func(o *options) {
		o.engine = e
	})
}

// WithRepertoire sets the opening repertoire.
func WithRepertoire(b repertoire.Book) Option {
	return optionFunc(func(o *options) {
		o.book = b
	})
}

// WithTablebase sets the endgame database.
func WithTablebase(p tablebase.Prober) Option {
	return optionFunc(func(o *options) {
		o.tablebase = p
	})
}

// WithJournal sets the persistent store for mistakes, analyses, decisions
// and game results. If not set, an in-memory journal is used and nothing
// outlives the process.
func WithJournal(j journal.Journal) Option {
	return optionFunc(func(o *options) {
		o.journal = j
	})
}

// WithLedger sets a mistake ledger shared with other Orchestrators.
// If not set, one is opened over the journal.
func WithLedger(l *ledger.Ledger) Option {
	return optionFunc(func(o *options) {
		o.ledger = l
	})
}

// WithAnalysisCache sets a shared analysis cache.
// If not set, one is created over the journal.
func WithAnalysisCache(c *analysiscache.Cache) Option {
	return optionFunc(func(o *options) {
		o.analyses = c
	})
}

// WithPolicy sets the source selection policy.
// Default is selector.DefaultPolicy().
func WithPolicy(p selector.Policy) Option {
	return optionFunc(func(o *options) {
		o.policy = p
	})
}

// WithRand sets the random source for repertoire and exploration draws.
func WithRand(r selector.Rand) Option {
	return optionFunc(func(o *options) {
		o.rng = r
	})
}

// WithSessionID sets the session identifier written to the decision log.
// If not set, a random UUID is used.
func WithSessionID(id string) Option {
	return optionFunc(func(o *options) {
		o.sessionID = id
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithClock sets the time source used for timestamps and latency.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}

// WithDataDir configures the repertoire and the endgame database from a
// data directory produced by the builder. It reads manifest.json to find
// the tables, their shard counts and strategies. Tables missing from the
// manifest are left unset; an explicit WithRepertoire or WithTablebase
// takes precedence.
func WithDataDir(dir string) (Option, error) {
	manifest, err := builder.ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if len(manifest.Tables) == 0 {
		return nil, fmt.Errorf("manifest in %s lists no tables", dir)
	}

	return optionFunc(func(o *options) {
		o.manifest = manifest
		o.dataDir = dir
	}), nil
}
