// Package noopcodec stores shards and reads sources without compression.
package noopcodec

import (
	"io"

	"github.com/discochess/gambit/internal/codec"
)

var _ codec.Codec = (*Codec)(nil)

// Codec passes bytes through unchanged.
type Codec struct{}

func New() *Codec { return &Codec{} }

// Reader never closes r; the caller owns it.
func (*Codec) Reader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// Writer never closes w; the caller owns it.
func (*Codec) Writer(w io.Writer) (io.WriteCloser, error) {
	return passthrough{w}, nil
}

func (*Codec) Extension() string { return "" }

func (*Codec) Name() string { return "none" }

type passthrough struct{ io.Writer }

func (passthrough) Close() error { return nil }
