// Package report aggregates the decision log, game results and mistake
// ledger into session statistics.
package report

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/ledger"
)

// Distribution summarizes a sample.
type Distribution struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	P50    float64
	P90    float64
	Max    float64
}

// Describe computes the distribution of xs. An empty sample yields the
// zero Distribution.
func Describe(xs []float64) Distribution {
	if len(xs) == 0 {
		return Distribution{}
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	d := Distribution{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		Min:   floats.Min(sorted),
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.9, stat.Empirical, sorted, nil),
		Max:   floats.Max(sorted),
	}
	if len(sorted) > 1 {
		d.StdDev = stat.StdDev(sorted, nil)
	}
	return d
}

// Games summarizes recorded game results from the agent's point of view.
type Games struct {
	Total    int
	Wins     int
	Draws    int
	Losses   int
	Unknown  int
	AvgPlies float64
	Mistakes int
}

// Summary is the statistics report of a session or of a whole journal.
type Summary struct {
	Decisions      int
	BySource       map[string]int
	ByPositionType map[string]int
	Explored       int
	Filtered       int
	CacheHits      int

	// Confidence is the distribution of classifier confidence.
	Confidence Distribution

	// TimeAllocation is the distribution of allotted engine time in seconds.
	TimeAllocation Distribution

	// Elapsed is the distribution of decision latency in milliseconds.
	Elapsed Distribution

	Games Games

	Mistakes         int
	MistakePositions int
	BySeverity       map[string]int

	// CachedPositions is the number of stored analyses, when known.
	CachedPositions int

	GeneratedAt time.Time
}

// Build aggregates decisions and game results.
func Build(decisions []journal.Decision, results []journal.GameResult) Summary {
	s := Summary{
		Decisions:      len(decisions),
		BySource:       make(map[string]int),
		ByPositionType: make(map[string]int),
		BySeverity:     make(map[string]int),
		GeneratedAt:    time.Now(),
	}

	confidence := make([]float64, 0, len(decisions))
	allocation := make([]float64, 0, len(decisions))
	elapsed := make([]float64, 0, len(decisions))
	for _, d := range decisions {
		s.BySource[d.Source]++
		s.ByPositionType[d.PositionType]++
		if d.Explored {
			s.Explored++
		}
		if d.Filtered {
			s.Filtered++
		}
		if d.CacheHit {
			s.CacheHits++
		}
		confidence = append(confidence, d.Confidence)
		allocation = append(allocation, d.TimeAllocation)
		elapsed = append(elapsed, float64(d.ElapsedMS))
	}
	s.Confidence = Describe(confidence)
	s.TimeAllocation = Describe(allocation)
	s.Elapsed = Describe(elapsed)

	s.Games = SummarizeGames(results)
	return s
}

// AddLedger folds a ledger summary into s.
func (s *Summary) AddLedger(ls ledger.Summary) {
	if s.BySeverity == nil {
		s.BySeverity = make(map[string]int)
	}
	s.Mistakes = ls.Total
	s.MistakePositions = ls.Positions
	for sev, n := range ls.BySeverity {
		s.BySeverity[sev.String()] = n
	}
}

// Outcomes of a game from the agent's point of view.
const (
	Win     = "win"
	Draw    = "draw"
	Loss    = "loss"
	Unknown = "unknown"
)

// Outcome maps a game result to win, draw or loss for the agent. Results
// may be given as win/draw/loss or as a PGN result together with the
// agent's color.
func Outcome(r journal.GameResult) string {
	switch r.Result {
	case Win, Draw, Loss:
		return r.Result
	case "1/2-1/2":
		return Draw
	case "1-0":
		return colored(r.Color, "white", "black")
	case "0-1":
		return colored(r.Color, "black", "white")
	}
	return Unknown
}

func colored(color, winner, loser string) string {
	switch color {
	case winner:
		return Win
	case loser:
		return Loss
	}
	return Unknown
}

// SummarizeGames counts outcomes and averages game length.
func SummarizeGames(results []journal.GameResult) Games {
	g := Games{Total: len(results)}
	plies := make([]float64, 0, len(results))
	for _, r := range results {
		switch Outcome(r) {
		case Win:
			g.Wins++
		case Draw:
			g.Draws++
		case Loss:
			g.Losses++
		default:
			g.Unknown++
		}
		g.Mistakes += r.Mistakes
		plies = append(plies, float64(r.Plies))
	}
	if len(plies) > 0 {
		g.AvgPlies = stat.Mean(plies, nil)
	}
	return g
}

// SourceShare returns the fraction of decisions served by source.
func (s Summary) SourceShare(source string) float64 {
	if s.Decisions == 0 {
		return 0
	}
	return float64(s.BySource[source]) / float64(s.Decisions)
}
