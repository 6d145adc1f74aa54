// Package memory is the in-process shard cache backend.
package memory

import (
	"sync/atomic"

	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
	"github.com/discochess/gambit/internal/store/cachedstore"
	"github.com/discochess/gambit/internal/store/cachedstore/cachestrategy"
)

var _ cachedstore.Backend = (*Backend)(nil)

// Backend keeps shards in an eviction strategy and mirrors its activity
// into a stats collector. The strategy must be safe for concurrent use.
type Backend struct {
	strategy cachestrategy.Strategy[store.Key, []byte]
	stats    stats.Collector

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New returns a backend over strategy. A nil collector discards metrics.
func New(strategy cachestrategy.Strategy[store.Key, []byte], c stats.Collector) *Backend {
	if c == nil {
		c = stats.NewNoop()
	}
	return &Backend{strategy: strategy, stats: c}
}

func (b *Backend) Get(key store.Key) ([]byte, bool) {
	data, ok := b.strategy.Get(key)
	if !ok {
		b.misses.Add(1)
		b.stats.IncCounter(stats.MetricCacheMisses, 1)
		return nil, false
	}
	b.hits.Add(1)
	b.stats.IncCounter(stats.MetricCacheHits, 1)
	return data, true
}

func (b *Backend) Set(key store.Key, data []byte) {
	if b.strategy.Add(key, data) {
		b.evictions.Add(1)
		b.stats.IncCounter(stats.MetricCacheEvictions, 1)
	}
	b.stats.SetGauge(stats.MetricCacheSize, int64(b.strategy.Len()))
}

func (b *Backend) Stats() cachedstore.Stats {
	return cachedstore.Stats{
		Hits:      b.hits.Load(),
		Misses:    b.misses.Load(),
		Evictions: b.evictions.Load(),
		Size:      b.strategy.Len(),
	}
}
