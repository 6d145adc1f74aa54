// Package memstore holds shard tables in memory, for tests and benchmarks
// that build tables without touching disk.
package memstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/discochess/gambit/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	shards map[store.Key][]byte
	reads  atomic.Int64
}

func New() *Store {
	return &Store{shards: make(map[store.Key][]byte)}
}

// Put stores a copy of data under key, replacing any previous shard.
func (s *Store) Put(key store.Key, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[key] = append([]byte(nil), data...)
}

// Len is the number of shards across all tables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shards)
}

// Reads counts ReadShard calls, found or not.
func (s *Store) Reads() int64 {
	return s.reads.Load()
}

func (s *Store) ReadShard(ctx context.Context, key store.Key) ([]byte, error) {
	s.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.shards[key]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (s *Store) Close() error { return nil }
