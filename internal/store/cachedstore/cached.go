package cachedstore

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store serves shards from a Backend, falling back to the underlying
// store on a miss.
type Store struct {
	underlying store.Store
	backend    Backend
	stats      stats.Collector

	group  singleflight.Group
	shared atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithStats sets the collector that counts shared fetches.
func WithStats(c stats.Collector) Option {
	return func(s *Store) { s.stats = c }
}

// New wraps underlying with backend.
func New(underlying store.Store, backend Backend, opts ...Option) *Store {
	s := &Store{
		underlying: underlying,
		backend:    backend,
		stats:      stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadShard returns the cached shard, or reads and caches it. Callers
// missing on the same shard at once share one underlying read. Errors,
// ErrNotFound included, are never cached. A caller giving up does not
// cancel the read other callers are waiting on.
func (s *Store) ReadShard(ctx context.Context, key store.Key) ([]byte, error) {
	if data, ok := s.backend.Get(key); ok {
		return data, nil
	}

	// Set only in the caller whose function runs; read after ch delivers.
	var leader bool
	ch := s.group.DoChan(key.String(), func() (any, error) {
		leader = true
		data, err := s.underlying.ReadShard(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		s.backend.Set(key, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared && !leader {
			s.shared.Add(1)
			s.stats.IncCounter(stats.MetricCacheShared, 1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.underlying.Close()
}

func (s *Store) Stats() Stats {
	st := s.backend.Stats()
	st.Shared = s.shared.Load()
	return st
}
