// Package diskstore reads shard tables from a local data directory laid
// out as <root>/<table>/<shard>[.<ext>].
package diskstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	root  string
	codec codec.Codec
	stats stats.Collector
}

// Option configures a Store.
type Option func(*Store)

// WithStats records shard fetch metrics.
func WithStats(c stats.Collector) Option {
	return func(s *Store) { s.stats = c }
}

// New opens the data directory root, which must exist.
func New(root string, c codec.Codec, opts ...Option) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening data dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data dir %s is not a directory", root)
	}

	s := &Store{root: root, codec: c, stats: stats.NewNoop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HasTable reports whether a table has been built into the data dir.
func (s *Store) HasTable(table string) bool {
	info, err := os.Stat(filepath.Join(s.root, table))
	return err == nil && info.IsDir()
}

func (s *Store) ReadShard(ctx context.Context, key store.Key) (data []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { store.Observe(s.stats, start, data, err) }()

	f, err := os.Open(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading shard %s: %w", key, err)
	}
	defer f.Close()

	return store.Decompress(s.codec, f, key)
}

// Path is where the shard for key lives on disk.
func (s *Store) Path(key store.Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.Name(s.codec.Extension())))
}

func (s *Store) Close() error { return nil }
