package memjournal

import (
	"context"
	"errors"
	"testing"

	"github.com/discochess/gambit/internal/journal"
)

func TestJournal_Mistakes(t *testing.T) {
	ctx := context.Background()
	j := New()

	for _, m := range []journal.Mistake{
		{PositionHash: "aa", MovePlayed: "e2e4"},
		{PositionHash: "bb", MovePlayed: "d2d4"},
		{PositionHash: "aa", MovePlayed: "g1f3"},
	} {
		if err := j.AppendMistake(ctx, m); err != nil {
			t.Fatalf("AppendMistake() error = %v", err)
		}
	}

	got, err := j.MistakesByHash(ctx, "aa")
	if err != nil {
		t.Fatalf("MistakesByHash() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(MistakesByHash(aa)) = %d, want 2", len(got))
	}

	counts, _ := j.Counts(ctx)
	if counts.Mistakes != 3 {
		t.Errorf("Counts().Mistakes = %d, want 3", counts.Mistakes)
	}
}

func TestJournal_AnalysisIsCopied(t *testing.T) {
	ctx := context.Background()
	j := New()

	a := journal.Analysis{Hash: "h", Moves: []journal.RankedMove{{Move: "e2e4"}}}
	if err := j.PutAnalysis(ctx, a); err != nil {
		t.Fatalf("PutAnalysis() error = %v", err)
	}
	a.Moves[0].Move = "mutated"

	got, err := j.Analysis(ctx, "h")
	if err != nil {
		t.Fatalf("Analysis() error = %v", err)
	}
	if got.Moves[0].Move != "e2e4" {
		t.Errorf("Analysis().Moves[0] = %q, want e2e4", got.Moves[0].Move)
	}

	if _, err := j.Analysis(ctx, "missing"); !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("Analysis(missing) error = %v, want ErrNotFound", err)
	}
}

func TestJournal_FailWrites(t *testing.T) {
	ctx := context.Background()
	j := New()
	boom := errors.New("disk full")

	j.FailWrites(boom)
	if err := j.AppendDecision(ctx, journal.Decision{}); !errors.Is(err, boom) {
		t.Errorf("AppendDecision() error = %v, want %v", err, boom)
	}

	j.FailWrites(nil)
	if err := j.AppendDecision(ctx, journal.Decision{}); err != nil {
		t.Errorf("AppendDecision() error = %v after restore", err)
	}
}

func TestJournal_Close(t *testing.T) {
	j := New()
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := j.Close(); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("Close() error = %v, want ErrClosed", err)
	}
	if _, err := j.Results(context.Background()); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("Results() error = %v, want ErrClosed", err)
	}
}
