// Package shardindex resolves a position to its record in a sharded table:
// it routes the normalized FEN to a shard, fetches the shard from a store
// and binary-searches it.
package shardindex

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/search"
	"github.com/discochess/gambit/internal/shard"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
)

var (
	// ErrNotFound indicates the position has no record.
	ErrNotFound = errors.New("shardindex: position not found")

	// ErrNoStore indicates no store was provided.
	ErrNoStore = errors.New("shardindex: no store provided")
)

// Index is one table of a shard store. It is safe for concurrent use.
type Index struct {
	store       store.Store
	table       string
	strategy    shard.Strategy
	totalShards int
	stats       stats.Collector
	logger      *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return func(ix *Index) { ix.stats = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// New creates an index over table in s. strategy and totalShards must match
// the ones the table was built with.
func New(s store.Store, table string, strategy shard.Strategy, totalShards int, opts ...Option) (*Index, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	if totalShards <= 0 {
		return nil, fmt.Errorf("shardindex: total shards must be positive, got %d", totalShards)
	}

	ix := &Index{
		store:       s,
		table:       table,
		strategy:    strategy,
		totalShards: totalShards,
		stats:       stats.NewNoop(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Key returns the record key and shard key for a position.
func (ix *Index) Key(fenStr string) (string, store.Key, error) {
	normalized, err := fen.Normalize(fenStr)
	if err != nil {
		return "", store.Key{}, err
	}
	return normalized, store.Key{
		Table: ix.table,
		Shard: ix.strategy.ShardID(normalized, ix.totalShards),
	}, nil
}

// Table returns the table name.
func (ix *Index) Table() string {
	return ix.table
}

// Close closes the underlying store.
func (ix *Index) Close() error {
	return ix.store.Close()
}

// Lookup returns the record for a position. A missing shard and a missing
// line both yield ErrNotFound.
func Lookup[T any](ctx context.Context, ix *Index, fenStr string) (*T, error) {
	key, shardKey, err := ix.Key(fenStr)
	if err != nil {
		return nil, err
	}

	data, err := ix.store.ReadShard(ctx, shardKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching shard %s: %w", shardKey, err)
	}

	record, err := search.Search[T](data, key)
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			return nil, ErrNotFound
		}
		ix.logger.Warn("corrupt shard record", zap.Stringer("shard", shardKey), zap.Error(err))
		return nil, err
	}
	return record, nil
}
