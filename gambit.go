// Package gambit chooses moves for a chess-playing agent by blending an
// endgame database, an opening repertoire and a UCI search engine, and
// learns from its own mistakes by suppressing moves the engine later
// judged inferior.
//
// Example usage:
//
//	eng, err := uci.Start(ctx, "stockfish", uci.WithThreads(2))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	o, err := gambit.New(
//	    gambit.WithEngine(eng),
//	    gambit.WithTablebase(lichess.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer o.Close()
//
//	d, err := o.Decide(ctx, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s from %s (%s)\n", d.Move, d.Source, d.Score())
package gambit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/notnil/chess"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/analysiscache"
	"github.com/discochess/gambit/internal/builder"
	"github.com/discochess/gambit/internal/classify"
	"github.com/discochess/gambit/internal/engine"
	"github.com/discochess/gambit/internal/features"
	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/journal/memjournal"
	"github.com/discochess/gambit/internal/ledger"
	"github.com/discochess/gambit/internal/report"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/selector"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store/diskstore"
	"github.com/discochess/gambit/internal/tablebase"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrNoMove indicates that no source produced a usable move. The caller
	// should stop or resign.
	ErrNoMove = errors.New("gambit: no legal move found")

	// ErrInvalidPosition indicates the FEN could not be parsed.
	ErrInvalidPosition = errors.New("gambit: invalid position")

	// ErrClosed indicates the orchestrator has been closed.
	ErrClosed = errors.New("gambit: orchestrator closed")

	errNotConfigured = errors.New("gambit: source not configured")
)

// Orchestrator turns positions into moves. It resolves one position at a
// time: Decide must not be called concurrently. Parallel games use one
// Orchestrator each, optionally sharing a ledger and analysis cache.
type Orchestrator struct {
	engine    engine.Searcher
	book      repertoire.Book
	tablebase tablebase.Prober
	journal   journal.Journal
	ledger    *ledger.Ledger
	analyses  *analysiscache.Cache
	selector  *selector.Selector
	rng       selector.Rand
	sessionID string
	stats     stats.Collector
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	decisions []Decision
	results   []journal.GameResult

	closed atomic.Bool
}

// New creates an Orchestrator with the given options.
// With no options it only has an in-memory journal and no move sources,
// so every Decide fails with ErrNoMove.
func New(opts ...Option) (*Orchestrator, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if err := cfg.policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.journal == nil {
		cfg.journal = memjournal.New()
	}
	if cfg.sessionID == "" {
		cfg.sessionID = uuid.NewString()
	}
	if cfg.manifest != nil {
		if err := openDataDir(&cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger.With(zap.String("session", cfg.sessionID))

	if cfg.ledger == nil {
		l, err := ledger.Open(context.Background(), cfg.journal,
			ledger.WithStats(cfg.stats),
			ledger.WithLogger(logger.Named("ledger")),
			ledger.WithClock(cfg.now),
		)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		cfg.ledger = l
	}
	if cfg.analyses == nil {
		c, err := analysiscache.New(cfg.journal,
			analysiscache.WithStats(cfg.stats),
			analysiscache.WithLogger(logger.Named("analysis")),
		)
		if err != nil {
			return nil, fmt.Errorf("creating analysis cache: %w", err)
		}
		cfg.analyses = c
	}

	selOpts := []selector.Option{selector.WithLogger(logger.Named("selector"))}
	if cfg.rng != nil {
		selOpts = append(selOpts, selector.WithRand(cfg.rng))
	}

	o := &Orchestrator{
		engine:    cfg.engine,
		book:      cfg.book,
		tablebase: cfg.tablebase,
		journal:   cfg.journal,
		ledger:    cfg.ledger,
		analyses:  cfg.analyses,
		selector:  selector.New(cfg.policy, selOpts...),
		sessionID: cfg.sessionID,
		stats:     cfg.stats,
		logger:    logger,
		now:       cfg.now,
	}
	o.rng = o.selector.Rand()

	if o.tablebase == nil {
		o.selector.MarkUnavailable(selector.EndgameDatabase, errNotConfigured)
	}
	if o.book == nil {
		o.selector.MarkUnavailable(selector.OpeningRepertoire, errNotConfigured)
	}
	if o.engine == nil {
		o.selector.MarkUnavailable(selector.SearchEngine, errNotConfigured)
	}

	o.logger.Debug("orchestrator initialized",
		zap.Bool("engine", o.engine != nil),
		zap.Bool("repertoire", o.book != nil),
		zap.Bool("tablebase", o.tablebase != nil),
		zap.Int("mistakes", o.ledger.Len()),
	)

	return o, nil
}

// openDataDir fills the repertoire and tablebase from a built data
// directory unless they were set explicitly.
func openDataDir(cfg *options) error {
	t, err := builder.OpenTables(builder.DiskStore(cfg.dataDir, diskstore.WithStats(cfg.stats)), cfg.manifest,
		builder.DefaultCacheShards, cfg.stats, cfg.logger)
	if err != nil {
		return err
	}

	var unused []io.Closer
	if t.Repertoire != nil {
		if cfg.book == nil {
			cfg.book = t.Repertoire
		} else {
			unused = append(unused, t.Repertoire)
		}
	}
	if t.Tablebase != nil {
		if cfg.tablebase == nil {
			cfg.tablebase = t.Tablebase
		} else {
			unused = append(unused, t.Tablebase)
		}
	}
	for _, c := range unused {
		_ = c.Close()
	}
	return nil
}

// SessionID returns the identifier written to every decision.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Ledger returns the mistake ledger.
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// Unavailable returns the sources disabled for the rest of the session.
func (o *Orchestrator) Unavailable() map[selector.Source]error {
	return o.selector.Unavailable()
}

// Decide chooses a move for the position. Sources are consulted in the
// order planned by the selector; a source that fails or has nothing to
// offer falls through to the next. ErrNoMove is returned when the
// position has no legal moves or every source came up empty.
func (o *Orchestrator) Decide(ctx context.Context, fenStr string) (*Decision, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	start := o.now()

	pos, err := parsePosition(fenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	hash, err := fen.Hash(fenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	plies, err := fen.Plies(fenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	pieces, err := fen.PieceCount(fenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}

	legal := legalMoves(pos)
	if len(legal) == 0 {
		o.stats.IncCounter(stats.MetricNoMove, 1)
		return nil, ErrNoMove
	}

	v := features.Extract(pos, plies)
	tag := classify.Classify(plies, v)
	d := &Decision{
		SessionID:    o.sessionID,
		PositionHash: hash,
		FEN:          fenStr,
		PositionType: tag,
		Features:     v,
		Confidence:   classify.Confidence(v),
		Budget:       o.selector.Policy().Budget(tag, v),
	}

	plan := o.selector.Plan(selector.Input{Pieces: pieces, Plies: plies})
	d.Explored = plan.Explored

	logger := o.logger.With(zap.String("hash", hash))
	logger.Debug("position classified",
		zap.Stringer("type", tag),
		zap.Float64("confidence", d.Confidence),
		zap.Int("plies", plies),
		zap.Int("pieces", pieces),
		zap.Stringers("plan", plan.Sources),
	)

	found := false
	for i, src := range plan.Sources {
		if i > 0 {
			o.stats.IncCounter(stats.MetricFallbacks, 1)
		}

		ok, err := o.query(ctx, src, d, legal)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if unavailable(err) {
				o.stats.IncCounter(stats.MetricSourceUnavailable, 1)
				o.selector.MarkUnavailable(src, err)
			} else {
				logger.Warn("source failed", zap.Stringer("source", src), zap.Error(err))
			}
			continue
		}
		if ok {
			d.Source = src
			found = true
			break
		}
		logger.Debug("source had no move", zap.Stringer("source", src))
	}

	if !found {
		o.stats.IncCounter(stats.MetricNoMove, 1)
		logger.Warn("no source produced a move", zap.Stringers("plan", plan.Sources))
		return nil, ErrNoMove
	}

	d.Timestamp = o.now()
	d.Elapsed = d.Timestamp.Sub(start)
	o.logDecision(ctx, d)
	return d, nil
}

func (o *Orchestrator) query(ctx context.Context, src selector.Source, d *Decision, legal map[string]bool) (bool, error) {
	switch src {
	case selector.EndgameDatabase:
		return o.queryTablebase(ctx, d, legal)
	case selector.OpeningRepertoire:
		return o.queryRepertoire(ctx, d, legal)
	case selector.SearchEngine:
		return o.queryEngine(ctx, d, legal)
	}
	return false, fmt.Errorf("unknown source %v", src)
}

// queryTablebase plays the database move only when the side to move wins.
func (o *Orchestrator) queryTablebase(ctx context.Context, d *Decision, legal map[string]bool) (bool, error) {
	res, err := o.tablebase.Probe(ctx, d.FEN)
	if errors.Is(err, tablebase.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m, ok := res.BestMove()
	if !ok {
		o.logger.Debug("tablebase position not winning", zap.Stringer("wdl", res.WDL))
		return false, nil
	}
	if !legal[m.UCI] {
		o.logger.Warn("tablebase returned illegal move", zap.String("move", m.UCI))
		return false, nil
	}

	d.Move = m.UCI
	return true, nil
}

// queryRepertoire draws a legal repertoire move weighted by its results.
func (o *Orchestrator) queryRepertoire(ctx context.Context, d *Decision, legal map[string]bool) (bool, error) {
	entries, err := o.book.Lookup(ctx, d.FEN)
	if errors.Is(err, repertoire.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	usable := make([]repertoire.Entry, 0, len(entries))
	for _, e := range entries {
		if legal[e.Move] {
			usable = append(usable, e)
		} else {
			o.logger.Warn("repertoire returned illegal move", zap.String("move", e.Move))
		}
	}

	e, ok := selector.WeightedChoice(usable, func(e repertoire.Entry) int { return e.Weight }, o.rng)
	if !ok {
		return false, nil
	}

	d.Move = e.Move
	return true, nil
}

// queryEngine reuses a stored analysis of the position when one exists,
// otherwise searches with the decision's budget. The best candidate the
// ledger does not reject is played, and recorded as a mistake when it
// trails the top line.
func (o *Orchestrator) queryEngine(ctx context.Context, d *Decision, legal map[string]bool) (bool, error) {
	a, hit, err := o.analyses.Get(ctx, d.PositionHash)
	if err != nil {
		o.logger.Warn("reading cached analysis", zap.Error(err))
	}

	if !hit {
		res, err := o.engine.Search(ctx, d.FEN, engine.Limits{
			MoveTime: d.Budget.Time,
			Depth:    d.Budget.Depth,
		})
		if errors.Is(err, engine.ErrNoMove) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		a = analysisOf(d.PositionHash, d.FEN, res, o.now())
		if len(a.Moves) == 0 {
			return false, nil
		}
		if err := o.analyses.Put(ctx, a); err != nil {
			o.logger.Debug("analysis kept in memory only", zap.Error(err))
		}
	}
	d.CacheHit = hit

	candidates := make([]ledger.Candidate, 0, len(a.Moves))
	for _, m := range a.Moves {
		if legal[m.Move] {
			candidates = append(candidates, ledger.Candidate{Move: m.Move, Eval: m.Eval})
		}
	}
	if len(candidates) == 0 {
		o.logger.Warn("engine returned no legal move", zap.Int("lines", len(a.Moves)))
		return false, nil
	}

	kept := o.ledger.Filter(d.PositionHash, candidates)
	d.Filtered = len(kept) < len(candidates)

	choice, best := kept[0], candidates[0]
	d.Move = choice.Move
	d.Eval = &choice.Eval

	if ledger.ShouldRecord(choice.Eval, best.Eval) {
		// A failed append is logged by the ledger; the record is indexed
		// either way.
		rec, _ := o.ledger.Record(ctx, d.PositionHash, choice.Move, choice.Eval, best.Move, best.Eval)
		d.Mistake = &rec
	}
	return true, nil
}

// analysisOf reduces a search result to its ranked first moves.
func analysisOf(hash, fenStr string, res *engine.Result, now time.Time) journal.Analysis {
	a := journal.Analysis{
		Hash:      hash,
		FEN:       fenStr,
		Depth:     res.Depth,
		Nodes:     res.Nodes,
		CreatedAt: now,
	}
	for _, l := range res.Lines {
		if l.Move == "" {
			continue
		}
		a.Moves = append(a.Moves, journal.RankedMove{Move: l.Move, Eval: l.Score.Pawns()})
	}
	if len(a.Moves) == 0 && res.BestMove != "" {
		a.Moves = []journal.RankedMove{{Move: res.BestMove}}
	}
	if len(a.Moves) > 0 {
		a.Evaluation = a.Moves[0].Eval
	}
	return a
}

func (o *Orchestrator) logDecision(ctx context.Context, d *Decision) {
	o.mu.Lock()
	o.decisions = append(o.decisions, *d)
	o.mu.Unlock()

	o.stats.IncCounter(stats.MetricDecisions, 1)
	o.stats.IncCounter(stats.MetricSource(d.Source.String()), 1)
	o.stats.IncCounter(stats.MetricPositionType(d.PositionType.String()), 1)
	o.stats.ObserveHistogram(stats.MetricDecisionSeconds, d.Elapsed.Seconds())
	o.stats.ObserveHistogram(stats.MetricConfidence, d.Confidence)
	if d.Explored {
		o.stats.IncCounter(stats.MetricExplored, 1)
	}

	if err := o.journal.AppendDecision(ctx, d.entry()); err != nil {
		o.stats.IncCounter(stats.MetricJournalErrors, 1)
		o.logger.Warn("logging decision", zap.Error(err))
	}

	o.logger.Info("move chosen",
		zap.String("hash", d.PositionHash),
		zap.String("move", d.Move),
		zap.Stringer("source", d.Source),
		zap.Stringer("type", d.PositionType),
		zap.Bool("cache_hit", d.CacheHit),
		zap.Bool("filtered", d.Filtered),
		zap.Duration("elapsed", d.Elapsed),
	)
}

// Decisions returns the decisions made in this session, oldest first.
func (o *Orchestrator) Decisions() []Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Decision, len(o.decisions))
	copy(out, o.decisions)
	return out
}

// RecordResult stores the outcome of a finished game.
func (o *Orchestrator) RecordResult(ctx context.Context, r GameResult) error {
	if o.closed.Load() {
		return ErrClosed
	}
	if r.GameID == "" {
		r.GameID = uuid.NewString()
	}
	if r.PlayedAt.IsZero() {
		r.PlayedAt = o.now()
	}

	entry := journal.GameResult{
		GameID:    r.GameID,
		SessionID: o.sessionID,
		Color:     r.Color,
		Result:    r.Result,
		Plies:     r.Plies,
		Mistakes:  r.Mistakes,
		PlayedAt:  r.PlayedAt,
	}

	o.mu.Lock()
	o.results = append(o.results, entry)
	o.mu.Unlock()

	if err := o.journal.AppendResult(ctx, entry); err != nil {
		o.stats.IncCounter(stats.MetricJournalErrors, 1)
		return fmt.Errorf("recording result of game %s: %w", r.GameID, err)
	}
	return nil
}

// Stats summarizes the session: decisions per source and position type,
// confidence and allocation distributions, game results and the mistakes
// known to the ledger.
func (o *Orchestrator) Stats() report.Summary {
	o.mu.Lock()
	entries := make([]journal.Decision, len(o.decisions))
	for i := range o.decisions {
		entries[i] = o.decisions[i].entry()
	}
	results := make([]journal.GameResult, len(o.results))
	copy(results, o.results)
	o.mu.Unlock()

	s := report.Build(entries, results)
	s.GeneratedAt = o.now()
	s.AddLedger(o.ledger.Summary())
	s.CachedPositions = o.analyses.Len()
	return s
}

// Close releases the engine, the move sources and the journal.
// After Close, the orchestrator should not be used.
func (o *Orchestrator) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	var err error
	if o.engine != nil {
		err = multierr.Append(err, wrapClose("engine", o.engine.Close()))
	}
	if o.tablebase != nil {
		err = multierr.Append(err, wrapClose("tablebase", o.tablebase.Close()))
	}
	if o.book != nil {
		err = multierr.Append(err, wrapClose("repertoire", o.book.Close()))
	}
	err = multierr.Append(err, wrapClose("journal", o.journal.Close()))
	return err
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("closing %s: %w", what, err)
}

// unavailable reports whether err means a collaborator is gone for the
// rest of the session rather than failing this one call.
func unavailable(err error) bool {
	return errors.Is(err, engine.ErrUnavailable) ||
		errors.Is(err, tablebase.ErrUnavailable) ||
		errors.Is(err, repertoire.ErrUnavailable)
}

func parsePosition(fenStr string) (*chess.Position, error) {
	opt, err := chess.FEN(fenStr)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt).Position(), nil
}

// legalMoves returns the legal moves of pos keyed by UCI notation.
func legalMoves(pos *chess.Position) map[string]bool {
	moves := pos.ValidMoves()
	out := make(map[string]bool, len(moves))
	for _, m := range moves {
		out[m.String()] = true
	}
	return out
}
