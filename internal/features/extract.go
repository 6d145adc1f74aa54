package features

import "github.com/notnil/chess"

const (
	maxPieces         = 32
	maxMaterial       = 39
	developmentPlies  = 20
	complexityMoves   = 50
	spaceSquares      = 16
	pawnChainDivisor  = 8
	checkBonus        = 0.3
	knightBonus       = 0.1
	slidingBonus      = 0.05
	centralPawnBonus  = 0.1
	isolatedPawnBonus = 0.2
	centerSquareValue = 0.25
	centralKingValue  = 0.5
)

var pieceValues = map[chess.PieceType]int{
	chess.Pawn:   1,
	chess.Knight: 3,
	chess.Bishop: 3,
	chess.Rook:   5,
	chess.Queen:  9,
}

// Extract computes the feature vector of pos. plies is the number of
// half-moves played before the position. Extract is total: a nil position
// yields the zero vector, and empty categories contribute 0.
func Extract(pos *chess.Position, plies int) Vector {
	if pos == nil {
		return Vector{}
	}
	b := newBoardView(pos.Board())

	return Vector{
		PieceCount:            pieceCount(b),
		PawnStructure:         pawnStructure(b),
		CenterControl:         centerControl(b),
		Development:           development(plies),
		KingSafety:            kingSafety(b),
		TacticalOpportunities: tacticalOpportunities(b, pos.Turn()),
		Complexity:            complexity(b, len(pos.ValidMoves())),
		MaterialBalance:       materialBalance(b),
		SpaceControl:          spaceControl(b),
		PawnChain:             pawnChain(b),
	}
}

// boardView is an 8x8 snapshot indexed [file][rank], both zero-based.
type boardView struct {
	squares [8][8]chess.Piece
	count   int
}

func newBoardView(board *chess.Board) *boardView {
	v := &boardView{}
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := board.Piece(sq)
		if p == chess.NoPiece {
			continue
		}
		v.squares[sq.File()][sq.Rank()] = p
		v.count++
	}
	return v
}

func (b *boardView) at(file, rank int) chess.Piece {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return chess.NoPiece
	}
	return b.squares[file][rank]
}

// each calls fn for every occupied square in file-major order.
func (b *boardView) each(fn func(file, rank int, p chess.Piece)) {
	for f := 0; f < 8; f++ {
		for r := 0; r < 8; r++ {
			if p := b.squares[f][r]; p != chess.NoPiece {
				fn(f, r, p)
			}
		}
	}
}

func pieceCount(b *boardView) float64 {
	return clamp01(1 - float64(b.count)/maxPieces)
}

func pawnStructure(b *boardView) float64 {
	var score float64
	b.each(func(f, r int, p chess.Piece) {
		if p.Type() != chess.Pawn {
			return
		}
		if f >= 2 && f <= 5 && r >= 2 && r <= 5 {
			score += centralPawnBonus
		}
		if isIsolated(b, f, p.Color()) {
			score += isolatedPawnBonus
		}
	})
	return clamp01(score)
}

func isIsolated(b *boardView, file int, c chess.Color) bool {
	for _, adj := range []int{file - 1, file + 1} {
		for r := 0; r < 8; r++ {
			p := b.at(adj, r)
			if p.Type() == chess.Pawn && p.Color() == c {
				return false
			}
		}
	}
	return true
}

func centerControl(b *boardView) float64 {
	var score float64
	for _, sq := range [][2]int{{3, 3}, {4, 3}, {3, 4}, {4, 4}} {
		if b.at(sq[0], sq[1]) != chess.NoPiece {
			score += centerSquareValue
		}
	}
	return clamp01(score)
}

func development(plies int) float64 {
	return clamp01(float64(plies) / developmentPlies)
}

func kingSafety(b *boardView) float64 {
	var score float64
	b.each(func(f, _ int, p chess.Piece) {
		if p.Type() == chess.King && f >= 2 && f <= 5 {
			score += centralKingValue
		}
	})
	return clamp01(score)
}

func tacticalOpportunities(b *boardView, turn chess.Color) float64 {
	var score float64
	if inCheck(b, turn) {
		score += checkBonus
	}
	b.each(func(_, _ int, p chess.Piece) {
		switch p.Type() {
		case chess.Knight:
			score += knightBonus
		case chess.Rook, chess.Bishop, chess.Queen:
			score += slidingBonus
		}
	})
	return clamp01(score)
}

func complexity(b *boardView, legalMoves int) float64 {
	return clamp01((float64(legalMoves)/complexityMoves + float64(b.count)/maxPieces) / 2)
}

func materialBalance(b *boardView) float64 {
	var white, black int
	b.each(func(_, _ int, p chess.Piece) {
		if p.Color() == chess.White {
			white += pieceValues[p.Type()]
		} else {
			black += pieceValues[p.Type()]
		}
	})
	diff := white - black
	if diff < 0 {
		diff = -diff
	}
	return clamp01(float64(diff) / maxMaterial)
}

func spaceControl(b *boardView) float64 {
	var occupied int
	for f := 2; f <= 5; f++ {
		for r := 2; r <= 5; r++ {
			if b.at(f, r) != chess.NoPiece {
				occupied++
			}
		}
	}
	return clamp01(float64(occupied) / spaceSquares)
}

func pawnChain(b *boardView) float64 {
	var score float64
	b.each(func(f, r int, p chess.Piece) {
		if p.Type() != chess.Pawn {
			return
		}
		length := 1
		for next := r + 1; next < 8; next++ {
			q := b.at(f, next)
			if q.Type() != chess.Pawn || q.Color() != p.Color() {
				break
			}
			length++
		}
		score += float64(length) / pawnChainDivisor
	})
	return clamp01(score)
}
