package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/search"
)

// ErrCorrupt reports a table whose shards do not match its manifest.
var ErrCorrupt = errors.New("builder: corrupt table")

// TableReport is the outcome of verifying one table.
type TableReport struct {
	Table   string
	Shards  int
	Records int64
}

// Verify checks every table in dir: each shard decompresses, is strictly
// sorted by key, and only holds keys its strategy routes to it. Record
// and shard counts must match the manifest. Failures wrap ErrCorrupt.
func Verify(ctx context.Context, dir string, progress ProgressFunc) ([]TableReport, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	reports := make([]TableReport, 0, len(m.Tables))
	for _, table := range m.TableNames() {
		r, err := verifyTable(ctx, dir, table, m.Tables[table], progress)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func verifyTable(ctx context.Context, dir, table string, info TableInfo, progress ProgressFunc) (TableReport, error) {
	cdc, err := NewCodec(info.Compression)
	if err != nil {
		return TableReport{}, err
	}
	strategy, err := NewStrategy(info.Strategy)
	if err != nil {
		return TableReport{}, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, table))
	if err != nil {
		return TableReport{}, fmt.Errorf("reading table directory: %w", err)
	}

	var (
		mu     sync.Mutex
		report = TableReport{Table: table}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		shardID, err := parseShardName(entry.Name(), cdc.Extension())
		if err != nil {
			return report, fmt.Errorf("%w: %s: %v", ErrCorrupt, table, err)
		}

		path := filepath.Join(dir, table, entry.Name())
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := verifyShard(path, cdc, func(key string) bool {
				return strategy.ShardID(key, info.TotalShards) == shardID
			})
			if err != nil {
				return fmt.Errorf("%w: %s/%s: %v", ErrCorrupt, table, entry.Name(), err)
			}

			mu.Lock()
			defer mu.Unlock()
			report.Shards++
			report.Records += int64(n)
			if progress != nil {
				progress(Progress{Phase: PhaseVerify, Table: table, ShardsCreated: report.Shards, RecordsRead: report.Records})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	if report.Shards != info.ShardCount || report.Records != info.RecordCount {
		return report, fmt.Errorf("%w: %s has %d records in %d shards, manifest says %d in %d",
			ErrCorrupt, table, report.Records, report.Shards, info.RecordCount, info.ShardCount)
	}
	return report, nil
}

func verifyShard(path string, cdc codec.Codec, routed func(key string) bool) (int, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	data, err := codec.Decode(cdc, compressed)
	if err != nil {
		return 0, err
	}

	return search.Verify(data, func(key string) error {
		if !routed(key) {
			return fmt.Errorf("key %q belongs to another shard", key)
		}
		return nil
	})
}

// parseShardName returns the shard number of a file named <%05d>[.ext].
func parseShardName(name, ext string) (int, error) {
	base := name
	if ext != "" {
		var ok bool
		if base, ok = strings.CutSuffix(name, "."+ext); !ok {
			return 0, fmt.Errorf("unexpected file %s", name)
		}
	}
	id, err := strconv.Atoi(base)
	if err != nil {
		return 0, fmt.Errorf("unexpected file %s", name)
	}
	return id, nil
}
