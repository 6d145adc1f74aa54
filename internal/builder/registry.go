package builder

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/codec/gzipcodec"
	"github.com/discochess/gambit/internal/codec/noopcodec"
	"github.com/discochess/gambit/internal/codec/zstdcodec"
	"github.com/discochess/gambit/internal/shard"
	"github.com/discochess/gambit/internal/shard/hashshard"
	"github.com/discochess/gambit/internal/shard/materialshard"
	"github.com/discochess/gambit/internal/shardindex"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
	"github.com/discochess/gambit/internal/store/cachedstore"
	"github.com/discochess/gambit/internal/store/cachedstore/cachestrategy/lru"
	"github.com/discochess/gambit/internal/store/cachedstore/memory"
)

// Codec names as written to the manifest.
const (
	CodecZstd = "zstd"
	CodecGzip = "gzip"
	CodecNone = "none"
)

// DefaultCacheShards is the number of decompressed shards OpenIndex keeps
// in memory per table.
const DefaultCacheShards = 64

// NewCodec returns the codec with the given manifest name.
func NewCodec(name string) (codec.Codec, error) {
	switch name {
	case CodecZstd, "":
		return zstdcodec.New(), nil
	case CodecGzip:
		return gzipcodec.New(), nil
	case CodecNone:
		return noopcodec.New(), nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// CodecName returns the manifest name of a codec.
func CodecName(c codec.Codec) string {
	return c.Name()
}

// CodecForPath picks the codec that decompresses a source file from its
// extension.
func CodecForPath(path string) codec.Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		return zstdcodec.New()
	case ".gz":
		return gzipcodec.New()
	}
	return noopcodec.New()
}

// NewStrategy returns the shard strategy with the given name.
func NewStrategy(name string) (shard.Strategy, error) {
	switch name {
	case "material":
		return materialshard.New(), nil
	case "xxhash", "hash":
		return hashshard.New(), nil
	}
	return nil, fmt.Errorf("unknown shard strategy %q", name)
}

// StoreFunc opens the shard store holding a table, decompressing with c.
type StoreFunc func(c codec.Codec) (store.Store, error)

// OpenIndex opens a table of a built data directory for lookups. Shards
// are read from disk and the most recently used ones kept decompressed.
func OpenIndex(dir string, m *Manifest, table string, cacheShards int, c stats.Collector, opts ...shardindex.Option) (*shardindex.Index, error) {
	return OpenTable(DiskStore(dir), m, table, cacheShards, c, opts...)
}

// OpenTable opens a table described by m from the store returned by open,
// which lets remote backends serve tables built locally.
func OpenTable(open StoreFunc, m *Manifest, table string, cacheShards int, c stats.Collector, opts ...shardindex.Option) (*shardindex.Index, error) {
	info, ok := m.Tables[table]
	if !ok {
		return nil, fmt.Errorf("table %q not in manifest", table)
	}

	cdc, err := NewCodec(info.Compression)
	if err != nil {
		return nil, err
	}
	strategy, err := NewStrategy(info.Strategy)
	if err != nil {
		return nil, err
	}

	st, err := open(cdc)
	if err != nil {
		return nil, err
	}

	if cacheShards > 0 {
		cache, err := lru.New[store.Key, []byte](cacheShards)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("creating shard cache: %w", err)
		}
		st = cachedstore.New(st, memory.New(cache, c), cachedstore.WithStats(c))
	}

	return shardindex.New(st, table, strategy, info.TotalShards, append([]shardindex.Option{shardindex.WithStats(c)}, opts...)...)
}
