// Package gambitfx provides an fx module for an Orchestrator assembled
// from a config.Config.
package gambitfx

import (
	"context"
	"errors"
	"fmt"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/internal/analysiscache"
	"github.com/discochess/gambit/internal/builder"
	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/config"
	"github.com/discochess/gambit/internal/engine"
	"github.com/discochess/gambit/internal/engine/uci"
	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/journal/diskjournal"
	"github.com/discochess/gambit/internal/journal/memjournal"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/stats/logger"
	"github.com/discochess/gambit/internal/stats/prometheus"
	"github.com/discochess/gambit/internal/store"
	"github.com/discochess/gambit/internal/store/diskstore"
	"github.com/discochess/gambit/internal/store/gcsstore"
	"github.com/discochess/gambit/internal/store/s3store"
	"github.com/discochess/gambit/internal/tablebase"
	"github.com/discochess/gambit/internal/tablebase/lichess"
)

// Module provides a *gambit.Orchestrator.
// Requires a config.Config and a *zap.Logger to be provided. A
// prometheus.Registerer is used for the prometheus sink when present.
var Module = fx.Module("gambit",
	fx.Provide(
		newStatsCollector,
		newJournal,
		newSources,
		newOrchestrator,
	),
)

// StatsParams holds dependencies for the stats collector.
type StatsParams struct {
	fx.In

	Config     config.Config
	Logger     *zap.Logger
	Registerer promclient.Registerer `optional:"true"`
}

func newStatsCollector(p StatsParams) stats.Collector {
	switch p.Config.Metrics.Sink {
	case config.MetricsLog:
		return logger.New(p.Logger.Named("gambit.stats"))
	case config.MetricsPrometheus:
		return prometheus.New(p.Registerer)
	default:
		return stats.NewNoop()
	}
}

func newJournal(cfg config.Config, log *zap.Logger) (journal.Journal, error) {
	if cfg.Journal.Dir == "" {
		return memjournal.New(), nil
	}
	j, err := diskjournal.Open(context.Background(), cfg.Journal.Dir,
		diskjournal.WithLogger(log.Named("journal")),
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Sources holds the move sources. A source that is not configured or
// failed to start is nil.
type Sources struct {
	Engine    engine.Searcher
	Book      repertoire.Book
	Tablebase tablebase.Prober
}

// Close closes every open source.
func (s Sources) Close() error {
	var err error
	if s.Engine != nil {
		err = multierr.Append(err, s.Engine.Close())
	}
	if s.Book != nil {
		err = multierr.Append(err, s.Book.Close())
	}
	if s.Tablebase != nil {
		err = multierr.Append(err, s.Tablebase.Close())
	}
	return err
}

// SourceParams holds dependencies for opening the move sources.
type SourceParams struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Collector stats.Collector
}

func newSources(p SourceParams) (Sources, error) {
	ctx := context.Background()
	cfg := p.Config

	// A bad policy fails the app anyway; check it before starting anything.
	if _, err := cfg.Policy.Selector(); err != nil {
		return Sources{}, err
	}

	tables, err := openTables(ctx, cfg, p.Collector, p.Logger)
	if err != nil {
		return Sources{}, err
	}

	var s Sources
	if tables.Repertoire != nil {
		s.Book = tables.Repertoire
	}

	switch cfg.Tablebase.Kind {
	case config.TablebaseShard:
		if tables.Tablebase != nil {
			s.Tablebase = tables.Tablebase
		} else {
			p.Logger.Warn("no tablebase table in data dir", zap.String("dir", cfg.Data.Dir))
		}
	case config.TablebaseLichess:
		s.Tablebase = newLichess(cfg.Tablebase, p.Collector, p.Logger)
	}
	if tables.Tablebase != nil && cfg.Tablebase.Kind != config.TablebaseShard {
		_ = tables.Tablebase.Close()
	}

	s.Engine = startEngine(ctx, cfg.Engine, p.Collector, p.Logger)
	return s, nil
}

// openTables opens the tables listed in the local manifest. A data dir
// without a manifest yields no tables.
func openTables(ctx context.Context, cfg config.Config, c stats.Collector, log *zap.Logger) (builder.Tables, error) {
	m, err := builder.ReadManifest(cfg.Data.Dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("no manifest in data dir", zap.String("dir", cfg.Data.Dir))
		return builder.Tables{}, nil
	}
	if err != nil {
		return builder.Tables{}, err
	}

	open, err := storeFunc(ctx, cfg.Data, c)
	if err != nil {
		return builder.Tables{}, err
	}
	return builder.OpenTables(open, m, cfg.Data.CacheShards, c, log)
}

func storeFunc(ctx context.Context, d config.DataConfig, c stats.Collector) (builder.StoreFunc, error) {
	switch d.Backend {
	case config.BackendDisk, "":
		return builder.DiskStore(d.Dir, diskstore.WithStats(c)), nil
	case config.BackendGCS:
		return func(cd codec.Codec) (store.Store, error) {
			return gcsstore.New(ctx, d.Bucket, cd,
				gcsstore.WithPrefix(d.Prefix),
				gcsstore.WithStats(c),
			)
		}, nil
	case config.BackendS3:
		return func(cd codec.Codec) (store.Store, error) {
			return s3store.New(ctx, d.Bucket, cd,
				s3store.WithPrefix(d.Prefix),
				s3store.WithRegion(d.Region),
				s3store.WithEndpoint(d.Endpoint),
				s3store.WithStats(c),
			)
		}, nil
	default:
		return nil, fmt.Errorf("unknown data backend %q", d.Backend)
	}
}

func newLichess(cfg config.TablebaseConfig, c stats.Collector, log *zap.Logger) *lichess.Client {
	opts := []lichess.Option{
		lichess.WithRateLimit(cfg.RateLimit, cfg.Burst),
		lichess.WithStats(c),
		lichess.WithLogger(log.Named("lichess")),
	}
	if cfg.URL != "" {
		opts = append(opts, lichess.WithBaseURL(cfg.URL))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, lichess.WithUserAgent(cfg.UserAgent))
	}
	return lichess.New(opts...)
}

// startEngine launches the configured engine. A missing or broken engine
// is logged and left out so the other sources still play.
func startEngine(ctx context.Context, cfg config.EngineConfig, c stats.Collector, log *zap.Logger) engine.Searcher {
	if cfg.Path == "" {
		return nil
	}
	opts := []uci.Option{
		uci.WithArgs(cfg.Args...),
		uci.WithThreads(cfg.Threads),
		uci.WithHash(cfg.HashMB),
		uci.WithMultiPV(cfg.MultiPV),
		uci.WithStats(c),
		uci.WithLogger(log.Named("uci")),
	}
	if d := cfg.Timeout(); d > 0 {
		opts = append(opts, uci.WithHandshakeTimeout(d))
	}
	if cfg.Contempt != nil {
		opts = append(opts, uci.WithContempt(*cfg.Contempt))
	}
	for name, value := range cfg.Options {
		opts = append(opts, uci.WithOption(name, value))
	}

	e, err := uci.Start(ctx, cfg.Path, opts...)
	if err != nil {
		log.Warn("engine unavailable", zap.String("path", cfg.Path), zap.Error(err))
		return nil
	}
	return e
}

// Params holds dependencies for creating the orchestrator.
type Params struct {
	fx.In

	Config    config.Config
	Logger    *zap.Logger
	Collector stats.Collector
	Journal   journal.Journal
	Sources   Sources
	Lifecycle fx.Lifecycle
}

// Result holds the provided orchestrator.
type Result struct {
	fx.Out

	Orchestrator *gambit.Orchestrator
}

func newOrchestrator(p Params) (_ Result, err error) {
	// The orchestrator owns the sources and journal once built. Until
	// then they are closed here.
	defer func() {
		if err != nil {
			err = multierr.Combine(err, p.Sources.Close(), p.Journal.Close())
		}
	}()

	policy, err := p.Config.Policy.Selector()
	if err != nil {
		return Result{}, err
	}

	cacheOpts := []analysiscache.Option{
		analysiscache.WithStats(p.Collector),
		analysiscache.WithLogger(p.Logger.Named("analysis")),
	}
	if n := p.Config.Journal.CacheSize; n > 0 {
		cacheOpts = append(cacheOpts, analysiscache.WithCapacity(n))
	}
	analyses, err := analysiscache.New(p.Journal, cacheOpts...)
	if err != nil {
		return Result{}, err
	}

	opts := []gambit.Option{
		gambit.WithJournal(p.Journal),
		gambit.WithAnalysisCache(analyses),
		gambit.WithPolicy(policy),
		gambit.WithStats(p.Collector),
		gambit.WithLogger(p.Logger.Named("gambit")),
	}
	if p.Sources.Engine != nil {
		opts = append(opts, gambit.WithEngine(p.Sources.Engine))
	}
	if p.Sources.Book != nil {
		opts = append(opts, gambit.WithRepertoire(p.Sources.Book))
	}
	if p.Sources.Tablebase != nil {
		opts = append(opts, gambit.WithTablebase(p.Sources.Tablebase))
	}

	o, err := gambit.New(opts...)
	if err != nil {
		return Result{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return o.Close()
		},
	})

	return Result{Orchestrator: o}, nil
}
