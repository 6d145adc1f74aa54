// Package s3store serves shard tables from S3 or an S3-compatible service
// such as MinIO.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	client   *s3.Client
	bucket   string
	prefix   string
	region   string
	endpoint string
	codec    codec.Codec
	stats    stats.Collector
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix places tables below prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = store.CleanPrefix(prefix) }
}

// WithRegion overrides the region from the shared AWS config.
func WithRegion(region string) Option {
	return func(s *Store) { s.region = region }
}

// WithEndpoint points the client at an S3-compatible service and switches
// to path-style addressing.
func WithEndpoint(endpoint string) Option {
	return func(s *Store) { s.endpoint = endpoint }
}

// WithStats records shard fetch metrics.
func WithStats(c stats.Collector) Option {
	return func(s *Store) { s.stats = c }
}

// New loads the default AWS credential chain. The bucket is not checked
// until the first read.
func New(ctx context.Context, bucket string, c codec.Codec, opts ...Option) (*Store, error) {
	s := &Store{
		bucket: bucket,
		codec:  c,
		stats:  stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var loadOpts []func(*config.LoadOptions) error
	if s.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	s.client = s3.NewFromConfig(cfg, s.clientOptions)
	return s, nil
}

func (s *Store) clientOptions(o *s3.Options) {
	if s.endpoint == "" {
		return
	}
	o.BaseEndpoint = aws.String(s.endpoint)
	o.UsePathStyle = true
}

func (s *Store) ReadShard(ctx context.Context, key store.Key) (data []byte, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { store.Observe(s.stats, start, data, err) }()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("fetching shard %s: %w", key, err)
	}
	defer out.Body.Close()

	return store.Decompress(s.codec, out.Body, key)
}

// Close is a no-op; the client holds no connections of its own.
func (s *Store) Close() error { return nil }

func (s *Store) objectKey(key store.Key) string {
	return s.prefix + key.Name(s.codec.Extension())
}
