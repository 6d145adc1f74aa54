// Package materialshard routes positions by material signature, so every
// position with the same material and side to move lands in one shard.
// Endgame tables built this way keep each material class contiguous.
package materialshard

import (
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/shard"
)

// Ensure Strategy implements shard.Strategy.
var _ shard.Strategy = (*Strategy)(nil)

// Strategy implements material-based sharding.
type Strategy struct{}

// New creates a material-based sharding strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name returns "material".
func (s *Strategy) Name() string {
	return "material"
}

// ShardID hashes the material signature and side to move. Unparseable
// FENs are hashed whole.
func (s *Strategy) ShardID(fenStr string, totalShards int) int {
	key := fenStr
	if sig, err := Signature(fenStr); err == nil {
		side, _ := fen.SideToMove(fenStr)
		key = sig + " " + side
	}
	return int(xxhash.Sum64String(key) % uint64(totalShards))
}

// Signature returns the material signature in endgame-table notation,
// strongest pieces first, e.g. "KRPvKR".
func Signature(fenStr string) (string, error) {
	m, err := fen.ParseMaterial(fenStr)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	writeArmy(&b, m.White)
	b.WriteByte('v')
	writeArmy(&b, m.Black)
	return b.String(), nil
}

func writeArmy(b *strings.Builder, a fen.Army) {
	b.WriteByte('K')
	for _, g := range [...]struct {
		letter string
		count  int
	}{{"Q", a.Queens}, {"R", a.Rooks}, {"B", a.Bishops}, {"N", a.Knights}, {"P", a.Pawns}} {
		b.WriteString(strings.Repeat(g.letter, g.count))
	}
}
