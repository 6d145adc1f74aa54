package memorygambitfx

import (
	"context"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/internal/journal/memjournal"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/selector"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type zeroRand struct{}

func (zeroRand) Float64() float64 { return 0 }
func (zeroRand) IntN(int) int     { return 0 }

func TestModule(t *testing.T) {
	var (
		o    *gambit.Orchestrator
		book *repertoire.Memory
		j    *memjournal.Journal
	)
	app := fxtest.New(t,
		fx.Supply(zap.NewNop()),
		fx.Provide(func() selector.Rand { return zeroRand{} }),
		Module,
		fx.Populate(&o, &book, &j),
	)
	app.RequireStart()
	defer app.RequireStop()

	if err := book.Add(startFEN, repertoire.Entry{Move: "g1f3", Weight: 5}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	d, err := o.Decide(context.Background(), startFEN)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Source != selector.OpeningRepertoire || d.Move != "g1f3" {
		t.Errorf("Source, Move = %v, %q, want opening_repertoire, g1f3", d.Source, d.Move)
	}

	decisions, err := j.Decisions(context.Background())
	if err != nil {
		t.Fatalf("Decisions() error = %v", err)
	}
	if len(decisions) != 1 || decisions[0].Move != "g1f3" {
		t.Errorf("journal decisions = %+v, want one g1f3", decisions)
	}
}

func TestModule_NoOptionalSources(t *testing.T) {
	var o *gambit.Orchestrator
	app := fxtest.New(t,
		fx.Supply(zap.NewNop()),
		Module,
		fx.Populate(&o),
	)
	app.RequireStart()
	defer app.RequireStop()

	got := o.Unavailable()
	if _, ok := got[selector.SearchEngine]; !ok {
		t.Error("search engine should be unavailable")
	}
	if _, ok := got[selector.EndgameDatabase]; !ok {
		t.Error("endgame database should be unavailable")
	}
	if _, ok := got[selector.OpeningRepertoire]; ok {
		t.Error("opening repertoire should be available")
	}
}
