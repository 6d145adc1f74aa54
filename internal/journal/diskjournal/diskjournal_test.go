package diskjournal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/discochess/gambit/internal/journal"
)

func openTemp(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return j
}

func TestJournal_MistakesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j := openTemp(t, dir)
	records := []journal.Mistake{
		{PositionHash: "aa", MovePlayed: "e2e4", MoveEval: 0.1, BestMove: "d2d4", BestEval: 1.3, Severity: "mistake", Timestamp: time.Unix(100, 0).UTC()},
		{PositionHash: "bb", MovePlayed: "g1f3", MoveEval: -1, BestMove: "c2c4", BestEval: 2, Severity: "blunder", Timestamp: time.Unix(200, 0).UTC()},
		{PositionHash: "aa", MovePlayed: "c2c4", MoveEval: 0.5, BestMove: "d2d4", BestEval: 1.3, Severity: "inaccuracy", Timestamp: time.Unix(300, 0).UTC()},
	}
	for _, m := range records {
		if err := j.AppendMistake(ctx, m); err != nil {
			t.Fatalf("AppendMistake() error = %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j = openTemp(t, dir)
	defer j.Close()

	all, err := j.Mistakes(ctx)
	if err != nil {
		t.Fatalf("Mistakes() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(Mistakes()) = %d, want 3", len(all))
	}

	got, err := j.MistakesByHash(ctx, "aa")
	if err != nil {
		t.Fatalf("MistakesByHash() error = %v", err)
	}
	if len(got) != 2 || got[0].MovePlayed != "e2e4" || got[1].MovePlayed != "c2c4" {
		t.Errorf("MistakesByHash(aa) = %+v, want e2e4 then c2c4", got)
	}
	if !got[0].Timestamp.Equal(records[0].Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, records[0].Timestamp)
	}

	none, err := j.MistakesByHash(ctx, "zz")
	if err != nil || len(none) != 0 {
		t.Errorf("MistakesByHash(zz) = %v, %v; want empty, nil", none, err)
	}
}

func TestJournal_AnalysisLatestWins(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j := openTemp(t, dir)
	if _, err := j.Analysis(ctx, "h"); !errors.Is(err, journal.ErrNotFound) {
		t.Fatalf("Analysis() error = %v, want ErrNotFound", err)
	}

	first := journal.Analysis{Hash: "h", Evaluation: 0.2, Moves: []journal.RankedMove{{Move: "e2e4", Eval: 0.2}}, Depth: 12}
	second := journal.Analysis{Hash: "h", Evaluation: 0.3, Moves: []journal.RankedMove{{Move: "d2d4", Eval: 0.3}}, Depth: 20}
	for _, a := range []journal.Analysis{first, second} {
		if err := j.PutAnalysis(ctx, a); err != nil {
			t.Fatalf("PutAnalysis() error = %v", err)
		}
	}
	j.Close()

	j = openTemp(t, dir)
	defer j.Close()

	got, err := j.Analysis(ctx, "h")
	if err != nil {
		t.Fatalf("Analysis() error = %v", err)
	}
	if got.Depth != 20 || got.Moves[0].Move != "d2d4" {
		t.Errorf("Analysis() = %+v, want depth 20 with d2d4", got)
	}
}

func TestJournal_SkipsTornLine(t *testing.T) {
	dir := t.TempDir()
	content := `{"position_hash":"aa","move_played":"e2e4","move_eval":0,"best_move":"d2d4","best_eval":1,"severity":"inaccuracy"}` + "\n" +
		`{"position_hash":"bb","move_pl`
	if err := os.WriteFile(filepath.Join(dir, MistakesFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	j := openTemp(t, dir)
	defer j.Close()

	all, err := j.Mistakes(context.Background())
	if err != nil {
		t.Fatalf("Mistakes() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("len(Mistakes()) = %d, want 1", len(all))
	}
}

func TestJournal_DecisionsAndResults(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t, t.TempDir())
	defer j.Close()

	for i := 0; i < 3; i++ {
		if err := j.AppendDecision(ctx, journal.Decision{Move: "e2e4", Source: "search_engine"}); err != nil {
			t.Fatalf("AppendDecision() error = %v", err)
		}
	}
	if err := j.AppendResult(ctx, journal.GameResult{GameID: "g1", Result: "1-0", Plies: 41}); err != nil {
		t.Fatalf("AppendResult() error = %v", err)
	}
	if err := j.AppendMistake(ctx, journal.Mistake{PositionHash: "aa"}); err != nil {
		t.Fatalf("AppendMistake() error = %v", err)
	}

	decisions, err := j.Decisions(ctx)
	if err != nil || len(decisions) != 3 {
		t.Fatalf("Decisions() = %d entries, %v; want 3, nil", len(decisions), err)
	}
	results, err := j.Results(ctx)
	if err != nil || len(results) != 1 || results[0].Plies != 41 {
		t.Fatalf("Results() = %+v, %v", results, err)
	}

	counts, err := j.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	want := journal.Counts{Mistakes: 1, Analyses: 0, Decisions: 3, Results: 1}
	if counts != want {
		t.Errorf("Counts() = %+v, want %+v", counts, want)
	}
}

func TestJournal_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	j := openTemp(t, dir)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 10; k++ {
				if err := j.AppendMistake(ctx, journal.Mistake{PositionHash: "aa", MovePlayed: "e2e4"}); err != nil {
					t.Errorf("AppendMistake() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()
	j.Close()

	j = openTemp(t, dir)
	defer j.Close()
	got, _ := j.MistakesByHash(ctx, "aa")
	if len(got) != 80 {
		t.Errorf("len(MistakesByHash()) = %d, want 80", len(got))
	}
}

func TestJournal_Closed(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t, t.TempDir())
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := j.Close(); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if err := j.AppendMistake(ctx, journal.Mistake{}); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("AppendMistake() error = %v, want ErrClosed", err)
	}
	if _, err := j.Analysis(ctx, "h"); !errors.Is(err, journal.ErrClosed) {
		t.Errorf("Analysis() error = %v, want ErrClosed", err)
	}
}

func TestJournal_CanceledContext(t *testing.T) {
	j := openTemp(t, t.TempDir())
	defer j.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.AppendDecision(ctx, journal.Decision{}); !errors.Is(err, context.Canceled) {
		t.Errorf("AppendDecision() error = %v, want context.Canceled", err)
	}
}
