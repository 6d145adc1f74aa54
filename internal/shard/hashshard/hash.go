// Package hashshard spreads positions uniformly across shards by hashing
// the normalized FEN. The opening repertoire uses it.
package hashshard

import (
	"github.com/cespare/xxhash/v2"

	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/shard"
)

// Ensure Strategy implements shard.Strategy.
var _ shard.Strategy = (*Strategy)(nil)

// Strategy implements hash-based sharding.
type Strategy struct{}

// New creates a hash-based sharding strategy.
func New() *Strategy {
	return &Strategy{}
}

// Name returns "xxhash".
func (s *Strategy) Name() string {
	return "xxhash"
}

// ShardID hashes the normalized FEN. Unparseable FENs are hashed as given.
func (s *Strategy) ShardID(fenStr string, totalShards int) int {
	normalized, err := fen.Normalize(fenStr)
	if err != nil {
		normalized = fenStr
	}
	return int(xxhash.Sum64String(normalized) % uint64(totalShards))
}
