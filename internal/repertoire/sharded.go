package repertoire

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/shardindex"
	"github.com/discochess/gambit/internal/stats"
)

// Compile-time check that Sharded implements Book.
var _ Book = (*Sharded)(nil)

// Sharded is a Book backed by a sharded table of Records.
type Sharded struct {
	index  *shardindex.Index
	stats  stats.Collector
	logger *zap.Logger
}

// Option configures a Sharded book.
type Option func(*Sharded)

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return func(s *Sharded) { s.stats = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sharded) { s.logger = l }
}

// NewSharded creates a book over a repertoire table.
func NewSharded(ix *shardindex.Index, opts ...Option) *Sharded {
	s := &Sharded{
		index:  ix,
		stats:  stats.NewNoop(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup returns the repertoire entries for a position.
func (s *Sharded) Lookup(ctx context.Context, fen string) ([]Entry, error) {
	s.stats.IncCounter(stats.MetricRepertoireLookups, 1)

	rec, err := shardindex.Lookup[Record](ctx, s.index, fen)
	if err != nil {
		if errors.Is(err, shardindex.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(rec.Moves) == 0 {
		return nil, ErrNotFound
	}
	s.logger.Debug("repertoire hit", zap.String("key", rec.Key), zap.Int("moves", len(rec.Moves)))
	return rec.Moves, nil
}

// Close closes the underlying store.
func (s *Sharded) Close() error {
	return s.index.Close()
}
