package s3store

import (
	"context"
	"testing"

	"github.com/discochess/gambit/internal/codec/gzipcodec"
	"github.com/discochess/gambit/internal/codec/zstdcodec"
	"github.com/discochess/gambit/internal/store"
)

func TestOptions(t *testing.T) {
	s := &Store{}
	for _, opt := range []Option{
		WithPrefix("gambit/v1/"),
		WithRegion("eu-west-1"),
		WithEndpoint("http://localhost:9000"),
	} {
		opt(s)
	}

	if s.prefix != "gambit/v1/" {
		t.Errorf("prefix = %q, want %q", s.prefix, "gambit/v1/")
	}
	if s.region != "eu-west-1" {
		t.Errorf("region = %q, want eu-west-1", s.region)
	}
	if s.endpoint != "http://localhost:9000" {
		t.Errorf("endpoint = %q, want http://localhost:9000", s.endpoint)
	}
}

func TestWithPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"prefix", "prefix/"},
		{"a/b/c/", "a/b/c/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s := &Store{}
			WithPrefix(tt.input)(s)
			if s.prefix != tt.want {
				t.Errorf("prefix = %q, want %q", s.prefix, tt.want)
			}
		})
	}
}

func TestStore_objectKey(t *testing.T) {
	tests := []struct {
		name string
		s    *Store
		key  store.Key
		want string
	}{
		{
			name: "zstd",
			s:    &Store{codec: zstdcodec.New()},
			key:  store.Key{Table: store.TableTablebase, Shard: 3},
			want: "tablebase/00003.zst",
		},
		{
			name: "gzip with prefix",
			s:    &Store{codec: gzipcodec.New(), prefix: "books/"},
			key:  store.Key{Table: store.TableRepertoire, Shard: 12345},
			want: "books/repertoire/12345.gz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.objectKey(tt.key); got != tt.want {
				t.Errorf("objectKey(%v) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestStore_ReadShardCanceled(t *testing.T) {
	s := &Store{codec: zstdcodec.New()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.ReadShard(ctx, store.Key{Table: store.TableRepertoire}); err != context.Canceled {
		t.Errorf("ReadShard() error = %v, want context.Canceled", err)
	}
}
