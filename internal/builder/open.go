package builder

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/codec"
	"github.com/discochess/gambit/internal/repertoire"
	"github.com/discochess/gambit/internal/shardindex"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/store"
	"github.com/discochess/gambit/internal/store/diskstore"
	"github.com/discochess/gambit/internal/tablebase/shardbase"
)

// Tables holds the lookups opened from a manifest. A table the manifest
// does not list is nil.
type Tables struct {
	Repertoire *repertoire.Sharded
	Tablebase  *shardbase.Prober
}

// Close closes every opened table.
func (t Tables) Close() error {
	var err error
	if t.Repertoire != nil {
		err = multierr.Append(err, t.Repertoire.Close())
	}
	if t.Tablebase != nil {
		err = multierr.Append(err, t.Tablebase.Close())
	}
	return err
}

// DiskStore returns a StoreFunc reading shards below dir.
func DiskStore(dir string, opts ...diskstore.Option) StoreFunc {
	return func(c codec.Codec) (store.Store, error) {
		st, err := diskstore.New(dir, c, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating store: %w", err)
		}
		return st, nil
	}
}

// OpenTables opens the repertoire and tablebase tables listed in m. The
// tablebase piece limit comes from the manifest.
func OpenTables(open StoreFunc, m *Manifest, cacheShards int, c stats.Collector, logger *zap.Logger) (Tables, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ixOpt := shardindex.WithLogger(logger.Named("shardindex"))

	var t Tables
	if _, ok := m.Tables[store.TableRepertoire]; ok {
		ix, err := OpenTable(open, m, store.TableRepertoire, cacheShards, c, ixOpt)
		if err != nil {
			return t, fmt.Errorf("opening repertoire: %w", err)
		}
		t.Repertoire = repertoire.NewSharded(ix,
			repertoire.WithStats(c),
			repertoire.WithLogger(logger.Named("repertoire")),
		)
	}

	if info, ok := m.Tables[store.TableTablebase]; ok {
		ix, err := OpenTable(open, m, store.TableTablebase, cacheShards, c, ixOpt)
		if err != nil {
			return t, multierr.Append(fmt.Errorf("opening tablebase: %w", err), t.Close())
		}
		opts := []shardbase.Option{shardbase.WithStats(c)}
		if info.MaxPieces > 0 {
			opts = append(opts, shardbase.WithMaxPieces(info.MaxPieces))
		}
		t.Tablebase = shardbase.New(ix, opts...)
	}
	return t, nil
}
