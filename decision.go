package gambit

import (
	"math"
	"strconv"
	"time"

	"github.com/discochess/gambit/internal/classify"
	"github.com/discochess/gambit/internal/engine"
	"github.com/discochess/gambit/internal/features"
	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/ledger"
	"github.com/discochess/gambit/internal/selector"
)

// Decision is the move chosen for one position and how it was reached.
type Decision struct {
	// SessionID identifies the Orchestrator that made the decision.
	SessionID string

	// PositionHash identifies the position modulo move clocks.
	PositionHash string

	// FEN is the position as given to Decide.
	FEN string

	// Move is the chosen move in UCI notation.
	Move string

	// Source is the move source that produced Move.
	Source selector.Source

	PositionType classify.Tag
	Features     features.Vector
	Confidence   float64

	// Budget is the engine allocation derived from the classification,
	// whether or not the engine was consulted.
	Budget selector.Budget

	// Eval is the engine evaluation of Move in pawns from the side to
	// move's point of view. Nil unless the engine produced the move.
	Eval *float64

	// Explored is set when the exploration policy reordered the sources.
	Explored bool

	// Filtered is set when the mistake ledger removed engine candidates.
	Filtered bool

	// CacheHit is set when a stored analysis replaced an engine search.
	CacheHit bool

	// Mistake is the ledger record written for Move, if any.
	Mistake *ledger.Record

	Elapsed   time.Duration
	Timestamp time.Time
}

// Score returns a human-readable evaluation of the chosen move.
// Examples: "+1.25", "-0.50", "#3", "#-5", "?".
func (d *Decision) Score() string {
	if d == nil || d.Eval == nil {
		return "?"
	}
	return FormatEval(*d.Eval)
}

// FormatEval formats an evaluation in pawns. Scores produced by mate
// lines are shown as a mate distance.
func FormatEval(pawns float64) string {
	cp := int(math.Round(pawns * 100))
	if n := engine.MateScore - abs(cp); n < 1000 {
		if cp < 0 {
			n = -n
		}
		return "#" + strconv.Itoa(n)
	}

	sign := "+"
	if cp < 0 {
		sign = "-"
		cp = -cp
	}
	whole := cp / 100
	frac := cp % 100
	if frac < 10 {
		return sign + strconv.Itoa(whole) + ".0" + strconv.Itoa(frac)
	}
	return sign + strconv.Itoa(whole) + "." + strconv.Itoa(frac)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func (d *Decision) entry() journal.Decision {
	return journal.Decision{
		SessionID:       d.SessionID,
		PositionHash:    d.PositionHash,
		FEN:             d.FEN,
		PositionType:    d.PositionType.String(),
		Source:          d.Source.String(),
		Move:            d.Move,
		Confidence:      d.Confidence,
		TimeAllocation:  d.Budget.Time.Seconds(),
		DepthAllocation: d.Budget.Depth,
		Eval:            d.Eval,
		ElapsedMS:       d.Elapsed.Milliseconds(),
		Explored:        d.Explored,
		Filtered:        d.Filtered,
		CacheHit:        d.CacheHit,
		Timestamp:       d.Timestamp,
	}
}

// GameResult is the outcome of a finished game.
type GameResult struct {
	// GameID identifies the game. A random ID is assigned when empty.
	GameID string

	// Color is the side the agent played, "white" or "black".
	Color string

	// Result is a PGN result ("1-0", "0-1", "1/2-1/2") or the outcome
	// from the agent's point of view ("win", "draw", "loss").
	Result string

	Plies    int
	Mistakes int
	PlayedAt time.Time
}
