// Package gzipcodec reads and writes gzip streams. Lichess database dumps
// and older shard sets use it.
package gzipcodec

import (
	"compress/gzip"
	"io"

	"github.com/discochess/gambit/internal/codec"
)

var _ codec.Codec = (*Codec)(nil)

// Codec is a gzip codec with a fixed compression level.
type Codec struct {
	level int
}

// Option configures a Codec.
type Option func(*Codec)

// WithLevel sets the compression level, from gzip.HuffmanOnly to
// gzip.BestCompression.
func WithLevel(level int) Option {
	return func(c *Codec) { c.level = level }
}

// New returns a gzip codec. Shards are written at gzip.BestCompression
// unless WithLevel says otherwise.
func New(opts ...Option) *Codec {
	c := &Codec{level: gzip.BestCompression}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// Writer fails when the configured level is out of range.
func (c *Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, c.level)
}

func (c *Codec) Extension() string { return "gz" }

func (c *Codec) Name() string { return "gzip" }
