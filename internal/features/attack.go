package features

import "github.com/notnil/chess"

var (
	knightJumps  = [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps    = [][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	straightRays = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonalRays = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// inCheck reports whether the king of color c is attacked.
func inCheck(b *boardView, c chess.Color) bool {
	kf, kr := -1, -1
	b.each(func(f, r int, p chess.Piece) {
		if p.Type() == chess.King && p.Color() == c {
			kf, kr = f, r
		}
	})
	if kf < 0 {
		return false
	}
	return attacked(b, kf, kr, c.Other())
}

// attacked reports whether the square (file, rank) is attacked by color by.
func attacked(b *boardView, file, rank int, by chess.Color) bool {
	is := func(f, r int, types ...chess.PieceType) bool {
		p := b.at(f, r)
		if p == chess.NoPiece || p.Color() != by {
			return false
		}
		for _, t := range types {
			if p.Type() == t {
				return true
			}
		}
		return false
	}

	// Pawns attack diagonally forward, so look one rank behind from their side.
	dir := -1
	if by == chess.Black {
		dir = 1
	}
	if is(file-1, rank+dir, chess.Pawn) || is(file+1, rank+dir, chess.Pawn) {
		return true
	}

	for _, d := range knightJumps {
		if is(file+d[0], rank+d[1], chess.Knight) {
			return true
		}
	}
	for _, d := range kingSteps {
		if is(file+d[0], rank+d[1], chess.King) {
			return true
		}
	}

	slide := func(rays [][2]int, types ...chess.PieceType) bool {
		for _, d := range rays {
			f, r := file+d[0], rank+d[1]
			for f >= 0 && f < 8 && r >= 0 && r < 8 {
				if b.at(f, r) != chess.NoPiece {
					if is(f, r, types...) {
						return true
					}
					break
				}
				f, r = f+d[0], r+d[1]
			}
		}
		return false
	}
	return slide(straightRays, chess.Rook, chess.Queen) ||
		slide(diagonalRays, chess.Bishop, chess.Queen)
}
