// Package shard defines how positions are routed to shard files.
package shard

// Strategy maps a position to one of totalShards shards.
type Strategy interface {
	// Name identifies the strategy in manifests and logs.
	Name() string

	// ShardID returns a shard in [0, totalShards). Positions that differ only
	// in their move clocks map to the same shard.
	ShardID(fen string, totalShards int) int
}
