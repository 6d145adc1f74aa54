// Package tablebase defines the boundary to an endgame database: perfect
// play information for positions with few pieces.
package tablebase

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound indicates the position is not covered by the database.
	ErrNotFound = errors.New("tablebase: position not found")

	// ErrUnavailable indicates the database cannot be reached or read.
	ErrUnavailable = errors.New("tablebase: unavailable")
)

// WDL is the game-theoretic outcome with perfect play. Cursed wins and
// blessed losses are decided by the fifty-move rule.
type WDL int

const (
	Loss        WDL = -2
	BlessedLoss WDL = -1
	Draw        WDL = 0
	CursedWin   WDL = 1
	Win         WDL = 2
)

var wdlNames = map[WDL]string{
	Loss:        "loss",
	BlessedLoss: "blessed-loss",
	Draw:        "draw",
	CursedWin:   "cursed-win",
	Win:         "win",
}

// String returns the lichess category name of the outcome.
func (w WDL) String() string {
	if name, ok := wdlNames[w]; ok {
		return name
	}
	return fmt.Sprintf("wdl(%d)", int(w))
}

// Winning reports whether the side to move wins.
func (w WDL) Winning() bool {
	return w > Draw
}

// Negate returns the outcome from the other side's point of view.
func (w WDL) Negate() WDL {
	return -w
}

// Move is one legal move with the outcome it leads to, from the point of
// view of the side playing it. DTZ counts plies to the next zeroing move.
type Move struct {
	UCI string `json:"uci"`
	WDL WDL    `json:"wdl"`
	DTZ int    `json:"dtz"`
}

// Result is a probed position from the side to move's point of view.
type Result struct {
	WDL   WDL    `json:"wdl"`
	DTZ   int    `json:"dtz"`
	Moves []Move `json:"moves,omitempty"`
}

// BestMove returns the winning move that reaches a zeroing move fastest.
// Ties keep the move listed first. ok is false when the side to move is not
// winning or no winning move is listed.
func (r *Result) BestMove() (Move, bool) {
	if r == nil || !r.WDL.Winning() {
		return Move{}, false
	}

	winning := make([]Move, 0, len(r.Moves))
	for _, m := range r.Moves {
		if m.WDL.Winning() {
			winning = append(winning, m)
		}
	}
	if len(winning) == 0 {
		return Move{}, false
	}

	sort.SliceStable(winning, func(i, j int) bool {
		if winning[i].WDL != winning[j].WDL {
			return winning[i].WDL > winning[j].WDL
		}
		return abs(winning[i].DTZ) < abs(winning[j].DTZ)
	})
	return winning[0], true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Prober probes positions given in FEN.
type Prober interface {
	// Probe returns the outcome and moves for a position, or ErrNotFound
	// when the position has more than MaxPieces pieces or is not stored.
	Probe(ctx context.Context, fen string) (*Result, error)

	// MaxPieces returns the largest piece count, kings included, covered.
	MaxPieces() int

	// Close releases resources.
	Close() error
}
