package gambitfx

import (
	"context"
	"errors"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/internal/builder"
	"github.com/discochess/gambit/internal/config"
	"github.com/discochess/gambit/internal/engine"
	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/journal/memjournal"
	"github.com/discochess/gambit/internal/selector"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/stats/logger"
	"github.com/discochess/gambit/internal/stats/prometheus"
)

const (
	startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	kqkFEN   = "7k/8/8/8/8/8/8/K5Q1 w - - 0 1"
)

const testPGN = `[White "a"]
[Black "b"]
[Result "1-0"]

1. c4 e5 2. Nc3 Nf6 3. Nf3 Nc6 4. g3 d5 5. cxd5 Nxd5 1-0
`

const testTablebase = `{"fen":"7k/8/8/8/8/8/8/K5Q1 w - - 0 1","wdl":2,"dtz":5,"moves":[{"uci":"g1g2","wdl":0,"dtz":0},{"uci":"g1a7","wdl":2,"dtz":4}]}
`

func buildDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	if _, err := builder.NewBuilder(builder.NewRepertoireSource(),
		builder.WithOutputDir(dir), builder.WithTotalShards(4),
	).BuildFrom(ctx, strings.NewReader(testPGN)); err != nil {
		t.Fatalf("building repertoire: %v", err)
	}
	if _, err := builder.NewBuilder(builder.NewTablebaseSource(5),
		builder.WithOutputDir(dir), builder.WithTotalShards(4),
	).BuildFrom(ctx, strings.NewReader(testTablebase)); err != nil {
		t.Fatalf("building tablebase: %v", err)
	}
	return dir
}

func testConfig(t *testing.T, dataDir string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Dir = dataDir
	cfg.Engine.Path = ""
	cfg.Journal.Dir = t.TempDir()
	cfg.Policy.BookProbability = 1
	return cfg
}

func startApp(t *testing.T, cfg config.Config) *gambit.Orchestrator {
	t.Helper()
	var o *gambit.Orchestrator
	app := fxtest.New(t,
		fx.Supply(cfg, zap.NewNop()),
		Module,
		fx.Populate(&o),
	)
	app.RequireStart()
	t.Cleanup(app.RequireStop)
	return o
}

func TestModule_DataDir(t *testing.T) {
	o := startApp(t, testConfig(t, buildDataDir(t)))

	if _, ok := o.Unavailable()[selector.SearchEngine]; !ok {
		t.Error("search engine should be unavailable without an engine path")
	}

	d, err := o.Decide(context.Background(), startFEN)
	if err != nil {
		t.Fatalf("Decide(start) error = %v", err)
	}
	if d.Source != selector.OpeningRepertoire || d.Move != "c2c4" {
		t.Errorf("start: Source, Move = %v, %q, want opening_repertoire, c2c4", d.Source, d.Move)
	}

	d, err = o.Decide(context.Background(), kqkFEN)
	if err != nil {
		t.Fatalf("Decide(endgame) error = %v", err)
	}
	if d.Source != selector.EndgameDatabase || d.Move != "g1a7" {
		t.Errorf("endgame: Source, Move = %v, %q, want endgame_database, g1a7", d.Source, d.Move)
	}
}

func TestModule_NoManifest(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Tablebase.Kind = config.TablebaseNone
	o := startApp(t, cfg)

	if n := len(o.Unavailable()); n != len(selector.Sources) {
		t.Errorf("len(Unavailable()) = %d, want %d", n, len(selector.Sources))
	}
	if _, err := o.Decide(context.Background(), startFEN); !errors.Is(err, gambit.ErrNoMove) {
		t.Errorf("Decide() error = %v, want ErrNoMove", err)
	}
}

func TestModule_StopClosesOrchestrator(t *testing.T) {
	var o *gambit.Orchestrator
	app := fxtest.New(t,
		fx.Supply(testConfig(t, t.TempDir()), zap.NewNop()),
		Module,
		fx.Populate(&o),
	)
	app.RequireStart()
	app.RequireStop()

	if _, err := o.Decide(context.Background(), startFEN); !errors.Is(err, gambit.ErrClosed) {
		t.Errorf("Decide() after stop error = %v, want ErrClosed", err)
	}
}

func TestModule_MissingEngine(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Engine.Path = "/nonexistent/stockfish"
	o := startApp(t, cfg)

	if _, ok := o.Unavailable()[selector.SearchEngine]; !ok {
		t.Error("search engine should be unavailable when it fails to start")
	}
}

func TestNewStatsCollector(t *testing.T) {
	tests := []struct {
		sink  string
		check func(stats.Collector) bool
	}{
		{config.MetricsNone, func(c stats.Collector) bool { _, ok := c.(stats.Noop); return ok }},
		{config.MetricsLog, func(c stats.Collector) bool { _, ok := c.(*logger.Collector); return ok }},
		{config.MetricsPrometheus, func(c stats.Collector) bool { _, ok := c.(*prometheus.Collector); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.sink, func(t *testing.T) {
			cfg := config.Default()
			cfg.Metrics.Sink = tt.sink
			c := newStatsCollector(StatsParams{
				Config:     cfg,
				Logger:     zap.NewNop(),
				Registerer: promclient.NewRegistry(),
			})
			if !tt.check(c) {
				t.Errorf("newStatsCollector(%q) = %T", tt.sink, c)
			}
		})
	}
}

func TestStoreFunc(t *testing.T) {
	d := config.Default().Data
	d.Backend = "ftp"
	if _, err := storeFunc(context.Background(), d, stats.NewNoop()); err == nil {
		t.Error("storeFunc() with unknown backend should return error")
	}

	d.Backend = config.BackendDisk
	if _, err := storeFunc(context.Background(), d, stats.NewNoop()); err != nil {
		t.Errorf("storeFunc(disk) error = %v", err)
	}
}

type closeCounter struct{ n int }

type fakeEngine struct{ closes *closeCounter }

func (f fakeEngine) Search(context.Context, string, engine.Limits) (*engine.Result, error) {
	return nil, engine.ErrUnavailable
}

func (f fakeEngine) Close() error {
	f.closes.n++
	return nil
}

type fakeJournal struct {
	journal.Journal
	closes *closeCounter
}

func (f fakeJournal) Close() error {
	f.closes.n++
	return f.Journal.Close()
}

func TestNewOrchestrator_FailureClosesSources(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"bad base time", func(c *config.Config) { c.Policy.BaseTime = "soon" }},
		{"bad book probability", func(c *config.Config) { c.Policy.BookProbability = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, t.TempDir())
			tt.modify(&cfg)

			closes := &closeCounter{}
			_, err := newOrchestrator(Params{
				Config:    cfg,
				Logger:    zap.NewNop(),
				Collector: stats.NewNoop(),
				Journal:   fakeJournal{Journal: memjournal.New(), closes: closes},
				Sources:   Sources{Engine: fakeEngine{closes: closes}},
				Lifecycle: fxtest.NewLifecycle(t),
			})
			if err == nil {
				t.Fatal("newOrchestrator() error = nil, want policy error")
			}
			if closes.n != 2 {
				t.Errorf("closed %d of engine and journal, want 2", closes.n)
			}
		})
	}
}

func TestModule_InvalidPolicyOpensNothing(t *testing.T) {
	cfg := testConfig(t, buildDataDir(t))
	cfg.Policy.BaseTime = "soon"

	s, err := newSources(SourceParams{Config: cfg, Logger: zap.NewNop(), Collector: stats.NewNoop()})
	if err == nil {
		t.Fatal("newSources() error = nil, want policy error")
	}
	if s.Engine != nil || s.Book != nil || s.Tablebase != nil {
		t.Errorf("newSources() = %+v, want no sources", s)
	}

	app := fx.New(
		fx.Supply(cfg, zap.NewNop()),
		Module,
		fx.Invoke(func(*gambit.Orchestrator) {}),
		fx.NopLogger,
	)
	if app.Err() == nil {
		t.Error("app.Err() = nil, want policy error")
	}
}
