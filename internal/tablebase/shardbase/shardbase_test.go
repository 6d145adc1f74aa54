package shardbase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/discochess/gambit/internal/shard/materialshard"
	"github.com/discochess/gambit/internal/shardindex"
	"github.com/discochess/gambit/internal/store"
	"github.com/discochess/gambit/internal/store/memstore"
	"github.com/discochess/gambit/internal/tablebase"
)

const krk = "8/8/8/4k3/8/8/4K3/4R3 w - - 0 1"

func newProber(t *testing.T, records ...Record) *Prober {
	t.Helper()
	s := memstore.New()
	ix, err := shardindex.New(s, store.TableTablebase, materialshard.New(), 16)
	if err != nil {
		t.Fatalf("shardindex.New() error = %v", err)
	}

	shards := map[store.Key][]byte{}
	for _, r := range records {
		_, k, err := ix.Key(r.Key)
		if err != nil {
			t.Fatalf("Key(%q) error = %v", r.Key, err)
		}
		line, _ := json.Marshal(r)
		shards[k] = append(append(shards[k], line...), '\n')
	}
	for k, data := range shards {
		s.Put(k, data)
	}
	return New(ix)
}

func TestProber_Probe(t *testing.T) {
	p := newProber(t, Record{
		Key: "8/8/8/4k3/8/8/4K3/4R3 w - -",
		WDL: tablebase.Win,
		DTZ: 31,
		Moves: []tablebase.Move{
			{UCI: "e1e4", WDL: tablebase.Win, DTZ: 30},
			{UCI: "e2d3", WDL: tablebase.Win, DTZ: 28},
		},
	})

	res, err := p.Probe(context.Background(), krk)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	best, ok := res.BestMove()
	if !ok || best.UCI != "e2d3" {
		t.Errorf("BestMove() = %q, %v, want e2d3", best.UCI, ok)
	}
}

func TestProber_NotFound(t *testing.T) {
	p := newProber(t)

	if _, err := p.Probe(context.Background(), krk); !errors.Is(err, tablebase.ErrNotFound) {
		t.Errorf("Probe(missing) error = %v, want ErrNotFound", err)
	}

	start := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	if _, err := p.Probe(context.Background(), start); !errors.Is(err, tablebase.ErrNotFound) {
		t.Errorf("Probe(32 pieces) error = %v, want ErrNotFound", err)
	}
	if p.MaxPieces() != DefaultMaxPieces {
		t.Errorf("MaxPieces() = %d, want %d", p.MaxPieces(), DefaultMaxPieces)
	}
}
