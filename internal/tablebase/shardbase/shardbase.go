// Package shardbase probes a local endgame table stored as sorted JSONL
// shards, routed by material signature.
package shardbase

import (
	"context"
	"errors"

	"github.com/discochess/gambit/internal/fen"
	"github.com/discochess/gambit/internal/shardindex"
	"github.com/discochess/gambit/internal/stats"
	"github.com/discochess/gambit/internal/tablebase"
)

// Compile-time check that Prober implements tablebase.Prober.
var _ tablebase.Prober = (*Prober)(nil)

// DefaultMaxPieces is the default piece limit, kings included.
const DefaultMaxPieces = 6

// Record is one position of a tablebase table. Key is the normalized FEN.
type Record struct {
	Key   string           `json:"key"`
	WDL   tablebase.WDL    `json:"wdl"`
	DTZ   int              `json:"dtz"`
	Moves []tablebase.Move `json:"moves,omitempty"`
}

// Prober reads a tablebase table through a shard index.
type Prober struct {
	index     *shardindex.Index
	maxPieces int
	stats     stats.Collector
}

// Option configures a Prober.
type Option func(*Prober)

// WithMaxPieces sets the largest piece count the table holds.
func WithMaxPieces(n int) Option {
	return func(p *Prober) { p.maxPieces = n }
}

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return func(p *Prober) { p.stats = c }
}

// New creates a prober over a tablebase table.
func New(ix *shardindex.Index, opts ...Option) *Prober {
	p := &Prober{
		index:     ix,
		maxPieces: DefaultMaxPieces,
		stats:     stats.NewNoop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxPieces returns the configured piece limit.
func (p *Prober) MaxPieces() int {
	return p.maxPieces
}

// Probe looks the position up in the table.
func (p *Prober) Probe(ctx context.Context, fenStr string) (*tablebase.Result, error) {
	n, err := fen.PieceCount(fenStr)
	if err != nil {
		return nil, err
	}
	if n > p.maxPieces {
		return nil, tablebase.ErrNotFound
	}

	p.stats.IncCounter(stats.MetricTablebaseProbes, 1)
	rec, err := shardindex.Lookup[Record](ctx, p.index, fenStr)
	if err != nil {
		if errors.Is(err, shardindex.ErrNotFound) {
			return nil, tablebase.ErrNotFound
		}
		return nil, err
	}
	return &tablebase.Result{WDL: rec.WDL, DTZ: rec.DTZ, Moves: rec.Moves}, nil
}

// Close closes the underlying store.
func (p *Prober) Close() error {
	return p.index.Close()
}
