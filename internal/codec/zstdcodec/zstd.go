// Package zstdcodec is the default shard codec.
package zstdcodec

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/discochess/gambit/internal/codec"
)

var _ codec.Codec = (*Codec)(nil)

// Codec compresses with zstd. Shards are written once by the builder and
// decoded on every cache miss, so decoding runs single-threaded in low
// memory mode.
type Codec struct {
	level zstd.EncoderLevel
}

// Option configures a Codec.
type Option func(*Codec)

// WithLevel sets the encoder level.
func WithLevel(level zstd.EncoderLevel) Option {
	return func(c *Codec) { c.level = level }
}

// New returns a zstd codec writing at zstd.SpeedBetterCompression.
func New(opts ...Option) *Codec {
	c := &Codec{level: zstd.SpeedBetterCompression}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
	)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

func (c *Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
}

func (c *Codec) Extension() string { return "zst" }

func (c *Codec) Name() string { return "zstd" }
