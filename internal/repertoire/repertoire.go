// Package repertoire provides opening moves with weights learned from
// games: each move is weighted by how well the side to move scored with it.
package repertoire

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the position is not in the repertoire.
	ErrNotFound = errors.New("repertoire: position not found")

	// ErrUnavailable indicates the repertoire cannot be read at all.
	ErrUnavailable = errors.New("repertoire: unavailable")
)

// Entry is one repertoire move. Moves are in UCI notation.
type Entry struct {
	Move   string `json:"move"`
	Weight int    `json:"weight"`
	Wins   int    `json:"wins,omitempty"`
	Draws  int    `json:"draws,omitempty"`
	Losses int    `json:"losses,omitempty"`
}

// Record is one position of a repertoire table. Key is the normalized FEN.
type Record struct {
	Key   string  `json:"key"`
	Moves []Entry `json:"moves"`
}

// Weight scores a move from the results of the games it was played in:
// two points per win and one per draw for the side that played it.
func Weight(wins, draws int) int {
	return 2*wins + draws
}

// Book looks up repertoire moves.
type Book interface {
	// Lookup returns the entries for a position, or ErrNotFound.
	Lookup(ctx context.Context, fen string) ([]Entry, error)

	// Close releases resources.
	Close() error
}
