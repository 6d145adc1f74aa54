package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/journal/memjournal"
)

func openLedger(t *testing.T, j journal.Journal) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), j, WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return l
}

func moves(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Move
	}
	return out
}

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		gap  float64
		want Severity
	}{
		{2.5, Blunder},
		{2.0, Mistake},
		{1.2, Mistake},
		{1.0, Inaccuracy},
		{0.6, Inaccuracy},
		{0.5, Minor},
		{0.2, Minor},
	}

	for _, tt := range tests {
		if got := SeverityOf(tt.gap); got != tt.want {
			t.Errorf("SeverityOf(%v) = %v, want %v", tt.gap, got, tt.want)
		}
	}
}

func TestShouldRecord(t *testing.T) {
	tests := []struct {
		played, best float64
		want         bool
	}{
		{0.1, 1.3, true},
		{1.2, 1.3, false},
		{1.3, 1.3, false},
		{1.5, 1.3, false},
		{1.1, 1.3, true},
	}

	for _, tt := range tests {
		if got := ShouldRecord(tt.played, tt.best); got != tt.want {
			t.Errorf("ShouldRecord(%v, %v) = %v, want %v", tt.played, tt.best, got, tt.want)
		}
	}
}

func TestLedger_RecordAndFilter(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, memjournal.New())

	r, err := l.Record(ctx, "h", "e4", 0.1, "d4", 1.3)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if r.Severity != Mistake {
		t.Errorf("Record().Severity = %v, want mistake", r.Severity)
	}

	got := l.Filter("h", []Candidate{{"e4", 0.1}, {"d4", 1.3}})
	if want := []string{"d4"}; !reflect.DeepEqual(moves(got), want) {
		t.Errorf("Filter() = %v, want %v", moves(got), want)
	}

	// Other positions are unaffected.
	got = l.Filter("other", []Candidate{{"e4", 0.1}, {"d4", 1.3}})
	if want := []string{"e4", "d4"}; !reflect.DeepEqual(moves(got), want) {
		t.Errorf("Filter(other) = %v, want %v", moves(got), want)
	}
}

func TestLedger_FilterNeverEmpties(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, memjournal.New())

	l.Record(ctx, "h", "e4", 0.1, "d4", 1.3)
	l.Record(ctx, "h", "d4", 0.2, "c4", 1.0)

	in := []Candidate{{"e4", 0.1}, {"d4", 0.2}}
	got := l.Filter("h", in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("Filter() = %v, want unfiltered %v", got, in)
	}

	if got := l.Filter("h", nil); len(got) != 0 {
		t.Errorf("Filter(nil) = %v, want empty", got)
	}
}

func TestLedger_LoadsFromJournal(t *testing.T) {
	ctx := context.Background()
	j := memjournal.New()

	first := openLedger(t, j)
	first.Record(ctx, "h", "e4", -2.0, "d4", 1.0)
	first.Record(ctx, "g", "a3", 0.0, "e4", 0.3)

	second := openLedger(t, j)
	if second.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", second.Len())
	}
	recs := second.Mistakes("h")
	if len(recs) != 1 || recs[0].Severity != Blunder || recs[0].BestMove != "d4" {
		t.Errorf("Mistakes(h) = %+v, want one blunder with best d4", recs)
	}

	got := second.Filter("h", []Candidate{{"e4", 0}, {"d4", 1}})
	if want := []string{"d4"}; !reflect.DeepEqual(moves(got), want) {
		t.Errorf("Filter() = %v, want %v", moves(got), want)
	}
}

func TestLedger_RecordSurvivesJournalFailure(t *testing.T) {
	ctx := context.Background()
	j := memjournal.New()
	l := openLedger(t, j)

	boom := errors.New("disk full")
	j.FailWrites(boom)

	r, err := l.Record(ctx, "h", "e4", 0.1, "d4", 1.3)
	if !errors.Is(err, boom) {
		t.Fatalf("Record() error = %v, want %v", err, boom)
	}
	if r.MovePlayed != "e4" {
		t.Errorf("Record() = %+v, want record for e4", r)
	}
	if got := l.Filter("h", []Candidate{{"e4", 0.1}, {"d4", 1.3}}); len(got) != 1 {
		t.Errorf("Filter() = %v, want e4 filtered despite failed write", got)
	}
}

func TestLedger_Summary(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t, memjournal.New())

	l.Record(ctx, "a", "m1", 0, "b1", 3)
	l.Record(ctx, "a", "m2", 0, "b1", 1.5)
	l.Record(ctx, "b", "m3", 0, "b2", 0.7)
	l.Record(ctx, "c", "m4", 0, "b3", 0.2)

	s := l.Summary()
	if s.Total != 4 || s.Positions != 3 {
		t.Errorf("Summary() total=%d positions=%d, want 4 and 3", s.Total, s.Positions)
	}
	for _, sev := range Severities {
		if s.BySeverity[sev] != 1 {
			t.Errorf("BySeverity[%v] = %d, want 1", sev, s.BySeverity[sev])
		}
	}
}

func TestOpen_NoJournal(t *testing.T) {
	if _, err := Open(context.Background(), nil); !errors.Is(err, ErrNoJournal) {
		t.Errorf("Open(nil) error = %v, want ErrNoJournal", err)
	}
}

func TestSeverity_Weight(t *testing.T) {
	prev := 0.0
	for _, s := range Severities {
		w := s.Weight()
		if w <= prev || w > 1 {
			t.Errorf("%v.Weight() = %v, want increasing in (0,1]", s, w)
		}
		prev = w
	}
}
