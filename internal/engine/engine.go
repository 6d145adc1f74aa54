// Package engine defines the boundary to a move-search engine.
package engine

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrUnavailable is returned when the engine process cannot be started
	// or has exited.
	ErrUnavailable = errors.New("engine: unavailable")

	// ErrNoMove is returned when the engine reports no best move.
	ErrNoMove = errors.New("engine: no best move")
)

// MateScore is the centipawn magnitude a mate in zero maps to.
const MateScore = 10000

// Limits bounds one search. Zero fields are not sent to the engine.
type Limits struct {
	MoveTime time.Duration
	Depth    int
}

// Score is an engine evaluation from the side to move's point of view.
// Mate is non-zero for forced mates: positive when the side to move mates,
// negative when it is mated.
type Score struct {
	Centipawns int
	Mate       int
}

// Pawns returns the score in pawns. A mate in N is scored as
// ±(MateScore - |N|) centipawns so shorter mates rank higher.
func (s Score) Pawns() float64 {
	if s.Mate != 0 {
		cp := float64(MateScore) - math.Abs(float64(s.Mate))
		if s.Mate < 0 {
			cp = -cp
		}
		return cp / 100
	}
	return float64(s.Centipawns) / 100
}

// Line is one principal variation of a search.
type Line struct {
	Move  string
	PV    []string
	Score Score
	Depth int
	Nodes int64
}

// Result is the outcome of a search. Lines are ordered best first.
type Result struct {
	BestMove string
	Lines    []Line
	Depth    int
	Nodes    int64
	Elapsed  time.Duration
}

// Eval returns the score of the best line in pawns.
func (r *Result) Eval() (float64, bool) {
	if r == nil || len(r.Lines) == 0 {
		return 0, false
	}
	return r.Lines[0].Score.Pawns(), true
}

// Searcher searches positions given in FEN.
type Searcher interface {
	Search(ctx context.Context, fen string, limits Limits) (*Result, error)
	Close() error
}
