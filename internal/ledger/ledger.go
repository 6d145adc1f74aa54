// Package ledger records moves that trailed the engine's best move and
// filters them out when the same position is seen again.
//
// The ledger is append-only: records are never edited, re-scored or
// forgotten. Every record is loaded from the journal when the ledger is
// opened and indexed by position hash.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/journal"
	"github.com/discochess/gambit/internal/stats"
)

// ErrNoJournal indicates no journal was provided.
var ErrNoJournal = errors.New("ledger: no journal provided")

// Record is one mistake: a move played in a position and the engine's
// preferred alternative.
type Record struct {
	PositionHash string
	MovePlayed   string
	MoveEval     float64
	BestMove     string
	BestEval     float64
	Severity     Severity
	Timestamp    time.Time
}

// Candidate is a move with its evaluation, as ranked by the engine.
type Candidate struct {
	Move string
	Eval float64
}

// Ledger is the in-memory index of mistake records backed by a journal.
// A Ledger is safe for concurrent use.
type Ledger struct {
	journal journal.Journal
	stats   stats.Collector
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	byHash map[string][]Record
	total  int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStats sets the stats collector.
func WithStats(c stats.Collector) Option {
	return func(l *Ledger) { l.stats = c }
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Ledger) { l.logger = lg }
}

// WithClock sets the clock used to timestamp records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open loads every mistake from j and returns a ledger indexed by hash.
func Open(ctx context.Context, j journal.Journal, opts ...Option) (*Ledger, error) {
	if j == nil {
		return nil, ErrNoJournal
	}

	l := &Ledger{
		journal: j,
		stats:   stats.NewNoop(),
		logger:  zap.NewNop(),
		now:     time.Now,
		byHash:  make(map[string][]Record),
	}
	for _, opt := range opts {
		opt(l)
	}

	rows, err := j.Mistakes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading mistakes: %w", err)
	}
	for _, row := range rows {
		sev, err := ParseSeverity(row.Severity)
		if err != nil {
			sev = SeverityOf(row.BestEval - row.MoveEval)
		}
		l.index(Record{
			PositionHash: row.PositionHash,
			MovePlayed:   row.MovePlayed,
			MoveEval:     row.MoveEval,
			BestMove:     row.BestMove,
			BestEval:     row.BestEval,
			Severity:     sev,
			Timestamp:    row.Timestamp,
		})
	}

	l.stats.SetGauge(stats.MetricLedgerSize, int64(l.total))
	l.logger.Debug("ledger loaded",
		zap.Int("records", l.total),
		zap.Int("positions", len(l.byHash)),
	)
	return l, nil
}

func (l *Ledger) index(r Record) {
	l.byHash[r.PositionHash] = append(l.byHash[r.PositionHash], r)
	l.total++
}

// Record computes the severity of a move, appends it to the journal and
// indexes it. The in-memory index is updated even when the append fails;
// the returned error reports the failed write.
func (l *Ledger) Record(ctx context.Context, hash, played string, playedEval float64, best string, bestEval float64) (Record, error) {
	r := Record{
		PositionHash: hash,
		MovePlayed:   played,
		MoveEval:     playedEval,
		BestMove:     best,
		BestEval:     bestEval,
		Severity:     SeverityOf(bestEval - playedEval),
		Timestamp:    l.now().UTC(),
	}

	l.mu.Lock()
	l.index(r)
	total := l.total
	l.mu.Unlock()

	l.stats.IncCounter(stats.MetricMistakesRecorded, 1)
	l.stats.SetGauge(stats.MetricLedgerSize, int64(total))
	l.logger.Info("mistake recorded",
		zap.String("hash", hash),
		zap.String("played", played),
		zap.String("best", best),
		zap.Stringer("severity", r.Severity),
	)

	err := l.journal.AppendMistake(ctx, journal.Mistake{
		PositionHash: r.PositionHash,
		MovePlayed:   r.MovePlayed,
		MoveEval:     r.MoveEval,
		BestMove:     r.BestMove,
		BestEval:     r.BestEval,
		Severity:     r.Severity.String(),
		Timestamp:    r.Timestamp,
	})
	if err != nil {
		l.stats.IncCounter(stats.MetricJournalErrors, 1)
		l.logger.Warn("mistake not persisted", zap.String("hash", hash), zap.Error(err))
		return r, fmt.Errorf("appending mistake: %w", err)
	}
	return r, nil
}

// Filter removes candidates previously recorded as played in the position.
// Order is preserved. If every candidate would be removed, the input is
// returned unchanged so the caller never runs out of moves.
func (l *Ledger) Filter(hash string, candidates []Candidate) []Candidate {
	l.mu.RLock()
	records := l.byHash[hash]
	bad := make(map[string]struct{}, len(records))
	for _, r := range records {
		bad[r.MovePlayed] = struct{}{}
	}
	l.mu.RUnlock()

	if len(bad) == 0 {
		return candidates
	}

	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := bad[c.Move]; ok {
			continue
		}
		kept = append(kept, c)
	}

	if removed := len(candidates) - len(kept); removed > 0 {
		l.stats.IncCounter(stats.MetricCandidatesFiltered, int64(removed))
	}
	if len(kept) == 0 {
		l.stats.IncCounter(stats.MetricFilterExhausted, 1)
		l.logger.Debug("every candidate was a known mistake, keeping all", zap.String("hash", hash))
		return candidates
	}
	return kept
}

// Mistakes returns the records for a position hash.
func (l *Ledger) Mistakes(hash string) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Record(nil), l.byHash[hash]...)
}

// Len returns the total number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Summary aggregates the ledger.
type Summary struct {
	Total      int
	Positions  int
	BySeverity map[Severity]int
}

// Summary returns record counts per severity.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Summary{
		Total:      l.total,
		Positions:  len(l.byHash),
		BySeverity: make(map[Severity]int, len(Severities)),
	}
	for _, records := range l.byHash {
		for _, r := range records {
			s.BySeverity[r.Severity]++
		}
	}
	return s
}
