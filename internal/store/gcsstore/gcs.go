// Package gcsstore serves shard tables uploaded to a Google Cloud Storage
// bucket by the builder.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
	codec  codec.Codec
	stats  stats.Collector
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix places tables below prefix, e.g. "gambit/v1".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = store.CleanPrefix(prefix) }
}

// WithStats records shard fetch metrics.
func WithStats(c stats.Collector) Option {
	return func(s *Store) { s.stats = c }
}

// New connects with application default credentials. The bucket is not
// checked until the first read.
func New(ctx context.Context, bucket string, c codec.Codec, opts ...Option) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := &Store{
		client: client,
		bucket: client.Bucket(bucket),
		codec:  c,
		stats:  stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) ReadShard(ctx context.Context, key store.Key) (data []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { store.Observe(s.stats, start, data, err) }()

	r, err := s.bucket.Object(s.objectName(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening shard %s: %w", key, err)
	}
	defer r.Close()

	return store.Decompress(s.codec, r, key)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(key store.Key) string {
	return s.prefix + key.Name(s.codec.Extension())
}
