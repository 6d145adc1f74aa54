package codec_test

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/codec/gzipcodec"
	"github.com/discochess/gambit/internal/codec/noopcodec"
	"github.com/discochess/gambit/internal/codec/zstdcodec"
)

// A repertoire shard line, repeated to look like a real shard.
var shard = bytes.Repeat([]byte(`{"key":"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq -","moves":[{"uci":"c7c5","games":120}]}`+"\n"), 200)

func TestCodecs(t *testing.T) {
	tests := []struct {
		codec    codec.Codec
		name     string
		ext      string
		compress bool
	}{
		{zstdcodec.New(), "zstd", "zst", true},
		{zstdcodec.New(zstdcodec.WithLevel(zstd.SpeedFastest)), "zstd", "zst", true},
		{gzipcodec.New(), "gzip", "gz", true},
		{gzipcodec.New(gzipcodec.WithLevel(gzip.BestSpeed)), "gzip", "gz", true},
		{noopcodec.New(), "none", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.codec.Name(); got != tt.name {
				t.Errorf("Name() = %q, want %q", got, tt.name)
			}
			if got := tt.codec.Extension(); got != tt.ext {
				t.Errorf("Extension() = %q, want %q", got, tt.ext)
			}

			for _, data := range [][]byte{shard, {}} {
				enc, err := codec.Encode(tt.codec, data)
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				if tt.compress && len(data) > 0 && len(enc) >= len(data) {
					t.Errorf("Encode() = %d bytes from %d, want smaller", len(enc), len(data))
				}
				dec, err := codec.Decode(tt.codec, enc)
				if err != nil {
					t.Fatalf("Decode() error = %v", err)
				}
				if !bytes.Equal(dec, data) {
					t.Errorf("Decode(Encode()) returned %d bytes, want %d", len(dec), len(data))
				}
			}
		})
	}
}

func TestDecode_Corrupt(t *testing.T) {
	for _, c := range []codec.Codec{zstdcodec.New(), gzipcodec.New()} {
		_, err := codec.Decode(c, []byte("not a compressed shard"))
		if err == nil {
			t.Errorf("%s: Decode() error = nil, want error", c.Name())
			continue
		}
		if !strings.HasPrefix(err.Error(), c.Name()+": ") {
			t.Errorf("%s: Decode() error = %q, want codec name prefix", c.Name(), err)
		}
	}
}

func TestGzip_InvalidLevel(t *testing.T) {
	if _, err := codec.Encode(gzipcodec.New(gzipcodec.WithLevel(42)), shard); err == nil {
		t.Error("Encode() with level 42 error = nil, want error")
	}
}

func TestNoop_LeavesUnderlyingOpen(t *testing.T) {
	var buf closeRecorder
	w, err := noopcodec.New().Writer(&buf)
	if err != nil {
		t.Fatalf("Writer() error = %v", err)
	}
	if _, err := w.Write([]byte("e2e4\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if buf.closed {
		t.Error("Close() closed the underlying writer")
	}
	if buf.String() != "e2e4\n" {
		t.Errorf("written = %q, want %q", buf.String(), "e2e4\n")
	}
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}
