// Package cachestrategy defines cache eviction strategy interfaces shared by
// the shard cache and the analysis cache.
package cachestrategy

// Strategy is a bounded key/value cache with an eviction policy.
type Strategy[K comparable, V any] interface {
	Get(key K) (V, bool)
	// Add stores value and reports whether an entry was evicted.
	Add(key K, value V) bool
	Len() int
}
