// Package analysiscache memoizes engine analyses by position hash. Recent
// analyses are held in an LRU in front of the journal, which keeps every
// analysis ever stored. Entries are never invalidated.
package analysiscache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store/cachedstore/cachestrategy"
	"github.com/discochess/gambit/internal/store/cachedstore/cachestrategy/lru"
)

// DefaultCapacity is the number of analyses held in memory.
const DefaultCapacity = 4096

// Cache is a two-level analysis cache. It is safe for concurrent use.
type Cache struct {
	journal  journal.Journal
	memory   cachestrategy.Strategy[string, journal.Analysis]
	capacity int
	stats    stats.Collector
	logger   *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the number of analyses held in memory.
func WithCapacity(n int) Option {
	return func(c *Cache) { c.capacity = n }
}

// WithStats sets the stats collector.
func WithStats(s stats.Collector) Option {
	return func(c *Cache) { c.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache in front of j.
func New(j journal.Journal, opts ...Option) (*Cache, error) {
	c := &Cache{
		journal:  j,
		capacity: DefaultCapacity,
		stats:    stats.NewNoop(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	mem, err := lru.New[string, journal.Analysis](c.capacity, func(hash string, _ journal.Analysis) {
		c.logger.Debug("analysis evicted from memory", zap.String("hash", hash))
	})
	if err != nil {
		return nil, fmt.Errorf("creating analysis LRU: %w", err)
	}
	c.memory = mem
	return c, nil
}

// Get returns the analysis stored for hash. A missing analysis is reported
// as ok == false with a nil error.
func (c *Cache) Get(ctx context.Context, hash string) (journal.Analysis, bool, error) {
	if a, ok := c.memory.Get(hash); ok {
		c.stats.IncCounter(stats.MetricAnalysisHits, 1)
		return a, true, nil
	}

	a, err := c.journal.Analysis(ctx, hash)
	if err != nil {
		c.stats.IncCounter(stats.MetricAnalysisMisses, 1)
		if errors.Is(err, journal.ErrNotFound) {
			return journal.Analysis{}, false, nil
		}
		return journal.Analysis{}, false, fmt.Errorf("reading analysis %s: %w", hash, err)
	}

	c.memory.Add(hash, *a)
	c.stats.IncCounter(stats.MetricAnalysisHits, 1)
	return *a, true, nil
}

// Put stores an analysis. The in-memory entry is kept even when the
// journal write fails.
func (c *Cache) Put(ctx context.Context, a journal.Analysis) error {
	c.memory.Add(a.Hash, a)
	if err := c.journal.PutAnalysis(ctx, a); err != nil {
		c.stats.IncCounter(stats.MetricJournalErrors, 1)
		c.logger.Warn("analysis not persisted", zap.String("hash", a.Hash), zap.Error(err))
		return fmt.Errorf("storing analysis %s: %w", a.Hash, err)
	}
	return nil
}

// Len returns the number of analyses held in memory.
func (c *Cache) Len() int {
	return c.memory.Len()
}
