// Package memorygambitfx provides an fx module for an in-memory
// Orchestrator. Useful for testing.
package memorygambitfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/internal/engine"
	"github.com/discochess/gambit/internal/journal/memjournal"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/selector"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/stats/logger"
	"github.com/discochess/gambit/internal/tablebase"
)

// Module provides an in-memory Orchestrator for testing.
// Requires a *zap.Logger to be provided. An engine.Searcher, a
// tablebase.Prober and a selector.Rand are used when present.
var Module = fx.Module("memorygambit",
	fx.Provide(
		newStatsCollector,
		memjournal.New,
		repertoire.NewMemory,
		newOrchestrator,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("gambit.stats"))
}

// Params holds dependencies for creating the orchestrator.
type Params struct {
	fx.In

	Logger    *zap.Logger
	Collector stats.Collector
	Journal   *memjournal.Journal
	Book      *repertoire.Memory
	Engine    engine.Searcher  `optional:"true"`
	Tablebase tablebase.Prober `optional:"true"`
	Rand      selector.Rand    `optional:"true"`
	Lifecycle fx.Lifecycle
}

// Result holds the provided orchestrator.
type Result struct {
	fx.Out

	Orchestrator *gambit.Orchestrator
}

func newOrchestrator(p Params) (Result, error) {
	opts := []gambit.Option{
		gambit.WithJournal(p.Journal),
		gambit.WithRepertoire(p.Book),
		gambit.WithStats(p.Collector),
		gambit.WithLogger(p.Logger.Named("gambit")),
	}
	if p.Engine != nil {
		opts = append(opts, gambit.WithEngine(p.Engine))
	}
	if p.Tablebase != nil {
		opts = append(opts, gambit.WithTablebase(p.Tablebase))
	}
	if p.Rand != nil {
		opts = append(opts, gambit.WithRand(p.Rand))
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
