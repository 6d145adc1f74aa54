// Package cachedstore keeps recently read shards decompressed in memory in
// front of a slower store, and collapses concurrent reads of one shard
// into a single fetch.
package cachedstore

import "github.com/discochess/gambit/internal/store"

// Backend holds decompressed shards.
type Backend interface {
	Get(key store.Key) ([]byte, bool)
	Set(key store.Key, data []byte)
	Stats() Stats
}

// Stats counts cache activity since the backend was created.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	// Shared counts misses that waited on another caller's fetch instead
	// of reading the underlying store.
	Shared int64
	Size   int
}

// HitRate is the percentage of reads answered from memory, or 0 before
// the first read.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
