package micro

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/notnil/chess"

	"github.com/discochess/gambit"
	"github.com/discochess/gambit/internal/builder"
	"github.com/discochess/gambit/internal/classify"
	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/features"
	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/search"
	"github.com/discochess/gambit/internal/selector"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
)

// Common opening positions.
var positions = []string{
	"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",         // Starting
	"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1",      // 1.e4
	"rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2",    // 1.e4 e5
	"rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2",   // 1.e4 e5 2.Nf3
	"r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3", // Italian setup
}

func mustPosition(b *testing.B, fen string) *chess.Position {
	b.Helper()
	opt, err := chess.FEN(fen)
	if err != nil {
		b.Fatalf("parsing FEN: %v", err)
	}
	return chess.NewGame(opt).Position()
}

// BenchmarkExtract measures feature extraction.
func BenchmarkExtract(b *testing.B) {
	pos := mustPosition(b, positions[4])

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = features.Extract(pos, 4)
	}
}

// BenchmarkClassify measures classification plus confidence.
func BenchmarkClassify(b *testing.B) {
	v := features.Extract(mustPosition(b, positions[4]), 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = classify.Classify(4, v)
		_ = classify.Confidence(v)
	}
}

// BenchmarkDecide_Repertoire measures a full decision answered from an
// in-memory repertoire.
func BenchmarkDecide_Repertoire(b *testing.B) {
	book := repertoire.NewMemory()
	if err := book.Add(positions[0],
		repertoire.Entry{Move: "e2e4", Weight: 3},
		repertoire.Entry{Move: "d2d4", Weight: 2},
	); err != nil {
		b.Fatalf("adding entries: %v", err)
	}

	p := selector.DefaultPolicy()
	p.BookProbability = 1
	o, err := gambit.New(gambit.WithRepertoire(book), gambit.WithPolicy(p))
	if err != nil {
		b.Fatalf("creating orchestrator: %v", err)
	}
	defer o.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := o.Decide(ctx, positions[0]); err != nil {
			b.Fatalf("decide error: %v", err)
		}
	}
}

// BenchmarkRepertoireLookup_WarmCache measures repertoire lookups against
// built tables. Requires DATA_DIR pointing to a directory built with
// 'gambit build repertoire'.
func BenchmarkRepertoireLookup_WarmCache(b *testing.B) {
	book := openRepertoire(b)
	defer book.Close()

	ctx := context.Background()
	for _, fen := range positions {
		_, _ = book.Lookup(ctx, fen)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := book.Lookup(ctx, positions[i%len(positions)])
		if err != nil && !errors.Is(err, repertoire.ErrNotFound) {
			b.Fatalf("lookup error: %v", err)
		}
	}
}

// BenchmarkShardSearch measures decompression plus binary search of one
// repertoire shard.
func BenchmarkShardSearch(b *testing.B) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		b.Skip("DATA_DIR not set; skipping benchmark")
	}
	m, err := builder.ReadManifest(dataDir)
	if err != nil {
		b.Skipf("reading manifest: %v", err)
	}
	info, ok := m.Tables[store.TableRepertoire]
	if !ok {
		b.Skip("no repertoire table")
	}
	c, err := builder.NewCodec(info.Compression)
	if err != nil {
		b.Fatalf("codec: %v", err)
	}

	key := store.Key{Table: store.TableRepertoire, Shard: 0}
	compressed, err := os.ReadFile(filepath.Join(dataDir, filepath.FromSlash(key.Name(c.Extension()))))
	if err != nil {
		b.Skipf("could not read shard: %v", err)
	}

	key0, err := fen.Normalize(positions[0])
	if err != nil {
		b.Fatalf("normalizing: %v", err)
	}

	b.SetBytes(int64(len(compressed)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := codec.Decode(c, compressed)
		if err != nil {
			b.Fatalf("decode error: %v", err)
		}
		if _, err := search.Search[repertoire.Record](data, key0); err != nil && !errors.Is(err, search.ErrNotFound) {
			b.Fatalf("search error: %v", err)
		}
	}
}

func openRepertoire(b *testing.B) *repertoire.Sharded {
	b.Helper()
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		b.Skip("DATA_DIR not set; skipping benchmark")
	}
	m, err := builder.ReadManifest(dataDir)
	if err != nil {
		b.Skipf("reading manifest: %v", err)
	}
	t, err := builder.OpenTables(builder.DiskStore(dataDir), m, builder.DefaultCacheShards, stats.NewNoop(), nil)
	if err != nil {
		b.Fatalf("opening tables: %v", err)
	}
	if t.Tablebase != nil {
		t.Tablebase.Close()
	}
	if t.Repertoire == nil {
		b.Skip("no repertoire table")
	}
	return t.Repertoire
}
