// Package lru evicts the least recently used entry once a cache is full.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/discochess/gambit/internal/store/cachedstore/cachestrategy"
)

var _ cachestrategy.Strategy[string, []byte] = (*Strategy[string, []byte])(nil)

// Strategy is a fixed-capacity LRU, safe for concurrent use.
type Strategy[K comparable, V any] struct {
	cache *lru.Cache[K, V]
}

// New returns an LRU holding at most capacity entries. onEvict, if given,
// runs for every entry pushed out by Add.
func New[K comparable, V any](capacity int, onEvict ...func(K, V)) (*Strategy[K, V], error) {
	var (
		c   *lru.Cache[K, V]
		err error
	)
	if len(onEvict) > 0 {
		c, err = lru.NewWithEvict(capacity, func(k K, v V) {
			for _, fn := range onEvict {
				fn(k, v)
			}
		})
	} else {
		c, err = lru.New[K, V](capacity)
	}
	if err != nil {
		return nil, err
	}
	return &Strategy[K, V]{cache: c}, nil
}

// Get marks key as recently used.
func (s *Strategy[K, V]) Get(key K) (V, bool) { return s.cache.Get(key) }

// Add reports whether an older entry was evicted to make room.
func (s *Strategy[K, V]) Add(key K, value V) bool { return s.cache.Add(key, value) }

func (s *Strategy[K, V]) Len() int { return s.cache.Len() }
