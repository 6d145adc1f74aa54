// Package fen reads the fields of Forsyth-Edwards Notation records and
// derives the normalized key and position hash that the repertoire,
// analysis cache and mistake ledger are keyed by.
package fen

import (
	"errors"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/notnil/chess"
)

// ErrInvalidFEN is returned for records that are not a well-formed FEN.
var ErrInvalidFEN = errors.New("fen: invalid FEN notation")

// Army counts one side's non-king pieces.
type Army struct {
	Pawns, Knights, Bishops, Rooks, Queens int
}

// Points is the conventional material value: P1 N3 B3 R5 Q9.
func (a Army) Points() int {
	return a.Pawns + 3*(a.Knights+a.Bishops) + 5*a.Rooks + 9*a.Queens
}

// Count is the number of pieces in the army.
func (a Army) Count() int {
	return a.Pawns + a.Knights + a.Bishops + a.Rooks + a.Queens
}

func (a *Army) add(piece byte) {
	switch piece {
	case 'p':
		a.Pawns++
	case 'n':
		a.Knights++
	case 'b':
		a.Bishops++
	case 'r':
		a.Rooks++
	case 'q':
		a.Queens++
	}
}

// Material is the non-king material of both sides.
type Material struct {
	White, Black Army
}

// Pieces is the number of non-king pieces on the board.
func (m Material) Pieces() int {
	return m.White.Count() + m.Black.Count()
}

// Normalize keeps the placement, side to move, castling and en passant
// fields and drops the move clocks, so transpositions share a key. The en
// passant square is kept only when a legal capture onto it exists.
func Normalize(fen string) (string, error) {
	f := strings.Fields(fen)
	if len(f) < 4 || !validSide(f[1]) || !walkPlacement(f[0], nil) {
		return "", ErrInvalidFEN
	}
	f = f[:4]
	if f[3] != "-" && !enPassantLegal(f) {
		f[3] = "-"
	}
	return strings.Join(f, " "), nil
}

// enPassantLegal reports whether the side to move can capture en passant.
// Move generators write the square after every double push.
func enPassantLegal(fields []string) bool {
	opt, err := chess.FEN(strings.Join(fields, " ") + " 0 1")
	if err != nil {
		return false
	}
	for _, m := range chess.NewGame(opt).ValidMoves() {
		if m.HasTag(chess.EnPassant) {
			return true
		}
	}
	return false
}

// Hash is the lowercase hex xxhash64 of the normalized FEN.
func Hash(fen string) (string, error) {
	normalized, err := Normalize(fen)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64String(normalized), 16), nil
}

// ParseMaterial counts the pieces of both sides.
func ParseMaterial(fen string) (Material, error) {
	var m Material
	ok := walkPlacement(firstField(fen), func(piece byte) {
		if piece >= 'a' {
			m.Black.add(piece)
		} else {
			m.White.add(piece + 'a' - 'A')
		}
	})
	if !ok {
		return Material{}, ErrInvalidFEN
	}
	return m, nil
}

// PieceCount is the number of pieces on the board with kings included,
// the figure compared against the endgame database cutoff.
func PieceCount(fen string) (int, error) {
	n := 0
	if !walkPlacement(firstField(fen), func(byte) { n++ }) {
		return 0, ErrInvalidFEN
	}
	return n, nil
}

// SideToMove is "w" or "b".
func SideToMove(fen string) (string, error) {
	f := strings.Fields(fen)
	if len(f) < 2 || !validSide(f[1]) {
		return "", ErrInvalidFEN
	}
	return f[1], nil
}

// MaxFullmove bounds the fullmove number accepted by Plies. No legal game
// comes near it.
const MaxFullmove = 1 << 20

// Plies is the number of half-moves played before the position, from the
// fullmove number and side to move. A FEN without counters is at move 1.
func Plies(fen string) (int, error) {
	side, err := SideToMove(fen)
	if err != nil {
		return 0, err
	}

	fullmove := 1
	if f := strings.Fields(fen); len(f) >= 6 {
		fullmove, err = strconv.Atoi(f[5])
		if err != nil || fullmove < 1 || fullmove > MaxFullmove {
			return 0, ErrInvalidFEN
		}
	}

	plies := 2 * (fullmove - 1)
	if side == "b" {
		plies++
	}
	return plies, nil
}

func firstField(fen string) string {
	f, _, _ := strings.Cut(strings.TrimSpace(fen), " ")
	return f
}

func validSide(s string) bool { return s == "w" || s == "b" }

// walkPlacement checks that placement describes eight ranks of eight
// squares and calls visit, when non-nil, for every piece letter in it.
func walkPlacement(placement string, visit func(piece byte)) bool {
	rank, squares := 0, 0
	for i := 0; i < len(placement); i++ {
		c := placement[i]
		switch {
		case c == '/':
			if squares != 8 {
				return false
			}
			rank++
			squares = 0
		case c >= '1' && c <= '8':
			squares += int(c - '0')
		case strings.IndexByte("PNBRQKpnbrqk", c) >= 0:
			squares++
			if visit != nil {
				visit(c)
			}
		default:
			return false
		}
		if squares > 8 {
			return false
		}
	}
	return rank == 7 && squares == 8
}
