// Package store defines the read-only backends that serve shard files for
// the opening repertoire and the local endgame tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/stats"
)

// ErrNotFound is returned when a shard does not exist in the store.
var ErrNotFound = errors.New("store: shard not found")

// Tables held by a store. Each table is a directory of shards.
const (
	TableRepertoire = "repertoire"
	TableTablebase  = "tablebase"
)

// Key identifies one shard of one table.
type Key struct {
	Table string
	Shard int
}

// Name returns the relative path of the shard, "<table>/<shard>[.<ext>]".
func (k Key) Name(ext string) string {
	name := fmt.Sprintf("%s/%05d", k.Table, k.Shard)
	if ext != "" {
		name += "." + ext
	}
	return name
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.Name("")
}

// Store serves decompressed shards. Implementations own the object
// layout and the codec.
type Store interface {
	ReadShard(ctx context.Context, key Key) ([]byte, error)
	Close() error
}

// CleanPrefix normalizes an object prefix to end in a single "/", or to
// "" when empty.
func CleanPrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Decompress reads one compressed shard from r.
func Decompress(c codec.Codec, r io.Reader, key Key) ([]byte, error) {
	dr, err := c.Reader(r)
	if err != nil {
		return nil, fmt.Errorf("shard %s: %s: %w", key, c.Name(), err)
	}
	defer dr.Close()

	data, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("decompressing shard %s: %w", key, err)
	}
	return data, nil
}

// Observe records a finished fetch that started at start. Failed fetches
// count but add no bytes.
func Observe(c stats.Collector, start time.Time, data []byte, err error) {
	c.IncCounter(stats.MetricShardFetches, 1)
	c.ObserveHistogram(stats.MetricShardFetchSeconds, time.Since(start).Seconds())
	if err == nil {
		c.IncCounter(stats.MetricShardBytes, int64(len(data)))
	}
}
