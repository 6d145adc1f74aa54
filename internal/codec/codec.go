// Package codec compresses and decompresses shard files and game sources.
package codec

import (
	"bytes"
	"fmt"
	"io"
)

// Codec wraps readers and writers with a compression format.
type Codec interface {
	// Reader wraps r to decompress data read from it.
	Reader(r io.Reader) (io.ReadCloser, error)
	// Writer wraps w to compress data written to it.
	Writer(w io.Writer) (io.WriteCloser, error)
	// Extension is the file suffix without the dot, or "" when shards are
	// stored raw.
	Extension() string
	// Name is the identifier recorded in table manifests.
	Name() string
}

// Encode compresses data in one call.
func Encode(c Codec, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.Writer(&buf)
	if err != nil {
		return nil, fmt.Errorf("%s: creating compressor: %w", c.Name(), err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%s: compressing: %w", c.Name(), err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: flushing compressor: %w", c.Name(), err)
	}
	return buf.Bytes(), nil
}

// Decode decompresses data in one call.
func Decode(c Codec, data []byte) ([]byte, error) {
	r, err := c.Reader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: creating decompressor: %w", c.Name(), err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: decompressing: %w", c.Name(), err)
	}
	return out, nil
}
