package memory

import (
	"sync"
	"testing"

	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
	"github.com/discochess/gambit/internal/store/cachedstore/cachestrategy/lru"
)

type countingCollector struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]int64
}

func newCountingCollector() *countingCollector {
	return &countingCollector{counters: map[string]int64{}, gauges: map[string]int64{}}
}

func (c *countingCollector) IncCounter(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += delta
}

func (c *countingCollector) SetGauge(name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = value
}

func (c *countingCollector) ObserveHistogram(string, float64) {}

func key(table string, shard int) store.Key {
	return store.Key{Table: table, Shard: shard}
}

func newBackend(t *testing.T, capacity int, c stats.Collector) *Backend {
	t.Helper()
	strategy, err := lru.New[store.Key, []byte](capacity)
	if err != nil {
		t.Fatalf("lru.New() error = %v", err)
	}
	return New(strategy, c)
}

func TestBackend_GetSet(t *testing.T) {
	b := newBackend(t, 10, nil)

	if _, ok := b.Get(key(store.TableRepertoire, 1)); ok {
		t.Error("Get() should return false for missing key")
	}

	b.Set(key(store.TableRepertoire, 1), []byte("book"))
	b.Set(key(store.TableTablebase, 1), []byte("tb"))

	data, ok := b.Get(key(store.TableRepertoire, 1))
	if !ok || string(data) != "book" {
		t.Errorf("Get(repertoire/1) = %q, %v, want book, true", data, ok)
	}
	data, ok = b.Get(key(store.TableTablebase, 1))
	if !ok || string(data) != "tb" {
		t.Errorf("Get(tablebase/1) = %q, %v, want tb, true", data, ok)
	}
}

func TestBackend_StatsAndMetrics(t *testing.T) {
	c := newCountingCollector()
	b := newBackend(t, 10, c)

	b.Set(key(store.TableRepertoire, 1), []byte("data"))
	b.Get(key(store.TableRepertoire, 1))
	b.Get(key(store.TableRepertoire, 2))

	s := b.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss, size 1", s)
	}
	if c.counters[stats.MetricCacheHits] != 1 || c.counters[stats.MetricCacheMisses] != 1 {
		t.Errorf("counters = %v, want one hit and one miss", c.counters)
	}
	if c.gauges[stats.MetricCacheSize] != 1 {
		t.Errorf("gauge %s = %d, want 1", stats.MetricCacheSize, c.gauges[stats.MetricCacheSize])
	}
}

func TestBackend_LRUEviction(t *testing.T) {
	c := newCountingCollector()
	b := newBackend(t, 2, c)

	b.Set(key(store.TableRepertoire, 1), []byte("one"))
	b.Set(key(store.TableRepertoire, 2), []byte("two"))
	b.Get(key(store.TableRepertoire, 1))
	b.Set(key(store.TableRepertoire, 3), []byte("three"))

	if _, ok := b.Get(key(store.TableRepertoire, 2)); ok {
		t.Error("Get(2) found, want evicted as least recently used")
	}
	for _, shard := range []int{1, 3} {
		if _, ok := b.Get(key(store.TableRepertoire, shard)); !ok {
			t.Errorf("Get(%d) missing, want cached", shard)
		}
	}
	if s := b.Stats(); s.Evictions != 1 || s.Size != 2 {
		t.Errorf("Stats() = %+v, want 1 eviction, size 2", s)
	}
	if c.counters[stats.MetricCacheEvictions] != 1 {
		t.Errorf("counter %s = %d, want 1", stats.MetricCacheEvictions, c.counters[stats.MetricCacheEvictions])
	}
}
