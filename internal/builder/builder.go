// Package builder turns game collections and tablebase dumps into the
// sharded tables read by the repertoire and tablebase packages.
package builder

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/codec/zstdcodec"
	"github.com/discochess/gambit/internal/search"
	"github.com/discochess/gambit/internal/shard"
	"github.com/discochess/gambit/internal/shard/hashshard"
	"github.com/discochess/gambit/internal/shard/materialshard"
	"github.com/discochess/gambit/internal/store"
)

const (
	// DefaultTotalShards is the default number of shards per table.
	DefaultTotalShards = 4096

	// DefaultRepertoireURL is a Lichess monthly game database.
	DefaultRepertoireURL = "https://database.lichess.org/standard/lichess_db_standard_rated_2013-01.pgn.zst"

	progressInterval = 100000
)

// Builder builds one table from a Source.
type Builder struct {
	source      Source
	sourceURL   string
	outputDir   string
	totalShards int
	strategy    shard.Strategy
	codec       codec.Codec
	progress    ProgressFunc
	tempDir     string
	maxMemoryMB int
	workers     int
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures the Builder.
type Option func(*Builder)

// WithSourceURL sets the URL Build downloads.
func WithSourceURL(u string) Option {
	return func(b *Builder) { b.sourceURL = u }
}

// WithOutputDir sets the data directory.
func WithOutputDir(dir string) Option {
	return func(b *Builder) { b.outputDir = dir }
}

// WithTotalShards sets the number of shards.
func WithTotalShards(n int) Option {
	return func(b *Builder) { b.totalShards = n }
}

// WithStrategy sets the sharding strategy. The default is material
// sharding for the tablebase and hash sharding otherwise.
func WithStrategy(s shard.Strategy) Option {
	return func(b *Builder) { b.strategy = s }
}

// WithCodec sets the shard compression. Default: zstd.
func WithCodec(c codec.Codec) Option {
	return func(b *Builder) { b.codec = c }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) { b.progress = fn }
}

// WithTempDir sets the directory for downloads and spill files.
func WithTempDir(dir string) Option {
	return func(b *Builder) { b.tempDir = dir }
}

// WithMaxMemoryMB bounds the records buffered before spilling to disk.
func WithMaxMemoryMB(mb int) Option {
	return func(b *Builder) { b.maxMemoryMB = mb }
}

// WithWorkers sets the number of shards compressed in parallel.
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder for src.
func NewBuilder(src Source, opts ...Option) *Builder {
	b := &Builder{
		source:      src,
		outputDir:   "./data",
		totalShards: DefaultTotalShards,
		codec:       zstdcodec.New(),
		maxMemoryMB: 2048,
		workers:     runtime.NumCPU(),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.strategy == nil {
		if src.Table() == store.TableTablebase {
			b.strategy = materialshard.New()
		} else {
			b.strategy = hashshard.New()
		}
	}
	if b.workers < 1 {
		b.workers = 1
	}
	b.logger = b.logger.Named("builder").With(zap.String("table", src.Table()))
	return b
}

// Build downloads the source URL and builds the table from it.
func (b *Builder) Build(ctx context.Context) (TableInfo, error) {
	if b.sourceURL == "" {
		return TableInfo{}, fmt.Errorf("no source URL for table %s", b.source.Table())
	}

	tmp, err := b.makeTempDir()
	if err != nil {
		return TableInfo{}, err
	}
	defer os.RemoveAll(tmp)

	dest := filepath.Join(tmp, downloadName(b.sourceURL))
	b.report(Progress{Phase: PhaseDownload, Table: b.source.Table(), StartTime: b.now()})
	if err := NewDownloader(WithDownloadLogger(b.logger)).DownloadToFile(ctx, b.sourceURL, dest, b.progress); err != nil {
		return TableInfo{}, fmt.Errorf("downloading source: %w", err)
	}
	return b.BuildFromFile(ctx, dest)
}

// downloadName keeps the URL's file name so the extension still selects
// the decompressor.
func downloadName(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if name := path.Base(u.Path); name != "." && name != "/" {
			return name
		}
	}
	return "source"
}

// BuildFromFile builds the table from a local file, decompressing .zst and
// .gz inputs.
func (b *Builder) BuildFromFile(ctx context.Context, sourcePath string) (TableInfo, error) {
	file, err := os.Open(sourcePath)
	if err != nil {
		return TableInfo{}, fmt.Errorf("opening source file: %w", err)
	}
	defer file.Close()

	reader, err := CodecForPath(sourcePath).Reader(file)
	if err != nil {
		return TableInfo{}, fmt.Errorf("creating decompressor: %w", err)
	}
	defer reader.Close()

	return b.BuildFrom(ctx, reader)
}

// BuildFrom builds the table from r, replacing any previous build of the
// same table, and records it in the manifest.
func (b *Builder) BuildFrom(ctx context.Context, r io.Reader) (TableInfo, error) {
	start := b.now()
	table := b.source.Table()

	tableDir := filepath.Join(b.outputDir, table)
	if err := os.RemoveAll(tableDir); err != nil {
		return TableInfo{}, fmt.Errorf("cleaning table directory: %w", err)
	}
	if err := os.MkdirAll(tableDir, 0o755); err != nil {
		return TableInfo{}, fmt.Errorf("creating table directory: %w", err)
	}

	tmp, err := b.makeTempDir()
	if err != nil {
		return TableInfo{}, err
	}
	defer os.RemoveAll(tmp)

	tracker := newMemoryTracker(b.maxMemoryMB)
	collectors := make([]*shardCollector, b.totalShards)
	for i := range collectors {
		collectors[i] = newShardCollector(i, tmp, tracker)
	}
	tracker.collectors = collectors

	b.report(Progress{Phase: PhaseRead, Table: table, StartTime: start})

	var bytesRead atomic.Int64
	var recordsRead int64
	err = b.source.Records(ctx, countReads(r, &bytesRead), func(key string, line []byte) error {
		id := b.strategy.ShardID(key, b.totalShards)
		if err := collectors[id].Add(line); err != nil {
			return fmt.Errorf("adding to shard %d: %w", id, err)
		}
		recordsRead++
		if recordsRead%progressInterval == 0 {
			b.report(Progress{
				Phase:       PhaseRead,
				Table:       table,
				BytesRead:   bytesRead.Load(),
				RecordsRead: recordsRead,
				StartTime:   start,
			})
		}
		return nil
	})
	if err != nil {
		b.report(Progress{Phase: PhaseError, Table: table, Error: err, StartTime: start})
		return TableInfo{}, err
	}

	written, created, err := b.writeShards(ctx, collectors, recordsRead, start)
	if err != nil {
		b.report(Progress{Phase: PhaseError, Table: table, Error: err, StartTime: start})
		return TableInfo{}, err
	}

	info := TableInfo{
		TotalShards: b.totalShards,
		Strategy:    b.strategy.Name(),
		Compression: CodecName(b.codec),
		RecordCount: written,
		ShardCount:  created,
		SourceURL:   b.sourceURL,
		BuiltAt:     b.now(),
	}
	if mp, ok := b.source.(interface{ MaxPieces() int }); ok {
		info.MaxPieces = mp.MaxPieces()
	}
	if err := updateManifest(b.outputDir, table, info); err != nil {
		return TableInfo{}, fmt.Errorf("writing manifest: %w", err)
	}

	b.report(Progress{
		Phase:          PhaseDone,
		Table:          table,
		BytesRead:      bytesRead.Load(),
		RecordsRead:    recordsRead,
		RecordsWritten: written,
		ShardsCreated:  created,
		ShardsTotal:    b.totalShards,
		StartTime:      start,
	})
	b.logger.Info("table built",
		zap.Int64("records", written),
		zap.Int("shards", created),
		zap.Int("spills", tracker.spills),
		zap.Duration("elapsed", b.now().Sub(start)),
	)
	return info, nil
}

// writeShards sorts and compresses every non-empty shard.
func (b *Builder) writeShards(ctx context.Context, collectors []*shardCollector, recordsRead int64, start time.Time) (int64, int, error) {
	table := b.source.Table()
	b.report(Progress{
		Phase:       PhaseShard,
		Table:       table,
		RecordsRead: recordsRead,
		ShardsTotal: b.totalShards,
		StartTime:   start,
	})

	var (
		mu      sync.Mutex
		written int64
		created int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, c := range collectors {
		if c.Count() == 0 {
			continue
		}
		g.Go(func() error {
			n, err := b.writeShard(gctx, store.Key{Table: table, Shard: i}, c)
			if err != nil {
				return fmt.Errorf("writing shard %d: %w", i, err)
			}

			mu.Lock()
			defer mu.Unlock()
			written += int64(n)
			created++
			b.report(Progress{
				Phase:          PhaseShard,
				Table:          table,
				RecordsRead:    recordsRead,
				RecordsWritten: written,
				ShardsCreated:  created,
				ShardsTotal:    b.totalShards,
				StartTime:      start,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return written, created, nil
}

// writeShard sorts a shard by key, drops repeated keys and writes it
// compressed. The first record of a repeated key wins.
func (b *Builder) writeShard(ctx context.Context, key store.Key, c *shardCollector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	records, err := c.GetAll()
	if err != nil {
		return 0, err
	}

	keys := make([]string, len(records))
	for i, rec := range records {
		keys[i] = search.ExtractKey(rec)
	}
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]] < keys[order[j]]
	})

	shardPath := filepath.Join(b.outputDir, filepath.FromSlash(key.Name(b.codec.Extension())))
	file, err := os.Create(shardPath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	w, err := b.codec.Writer(file)
	if err != nil {
		return 0, err
	}

	count, dupes := 0, 0
	prev := ""
	for i, idx := range order {
		k := keys[idx]
		if k == "" {
			continue
		}
		if i > 0 && k == prev {
			dupes++
			continue
		}
		prev = k
		if _, err := w.Write(append(records[idx], '\n')); err != nil {
			w.Close()
			return 0, err
		}
		count++
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if dupes > 0 {
		b.logger.Debug("dropped repeated keys", zap.Stringer("shard", key), zap.Int("count", dupes))
	}
	return count, file.Close()
}

func (b *Builder) makeTempDir() (string, error) {
	parent := b.tempDir
	if parent == "" {
		parent = b.outputDir
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}
	dir, err := os.MkdirTemp(parent, ".tmp-"+b.source.Table()+"-")
	if err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}
	return dir, nil
}

func (b *Builder) report(p Progress) {
	if b.progress != nil {
		b.progress(p)
	}
}
