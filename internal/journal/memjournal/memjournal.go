// Package memjournal provides an in-memory journal for testing.
package memjournal

import (
	"context"
	"sync"

	"github.com/discochess/gambit/internal/journal"
)

// Compile-time check that Journal implements journal.Journal.
var _ journal.Journal = (*Journal)(nil)

// Journal keeps every table in memory. It is safe for concurrent use.
type Journal struct {
	mu        sync.RWMutex
	closed    bool
	mistakes  []journal.Mistake
	analyses  map[string]journal.Analysis
	decisions []journal.Decision
	results   []journal.GameResult

	// failWrites makes every append fail with this error, for tests.
	failWrites error
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{analyses: make(map[string]journal.Analysis)}
}

// FailWrites makes subsequent appends return err. Pass nil to restore.
func (j *Journal) FailWrites(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failWrites = err
}

func (j *Journal) writable() error {
	if j.closed {
		return journal.ErrClosed
	}
	return j.failWrites
}

// AppendMistake appends a mistake record.
func (j *Journal) AppendMistake(ctx context.Context, m journal.Mistake) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writable(); err != nil {
		return err
	}
	j.mistakes = append(j.mistakes, m)
	return nil
}

// Mistakes returns a copy of every mistake record.
func (j *Journal) Mistakes(ctx context.Context) ([]journal.Mistake, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, journal.ErrClosed
	}
	return append([]journal.Mistake(nil), j.mistakes...), nil
}

// MistakesByHash returns the mistakes recorded for hash.
func (j *Journal) MistakesByHash(ctx context.Context, hash string) ([]journal.Mistake, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, journal.ErrClosed
	}
	var out []journal.Mistake
	for _, m := range j.mistakes {
		if m.PositionHash == hash {
			out = append(out, m)
		}
	}
	return out, nil
}

// PutAnalysis stores an analysis.
func (j *Journal) PutAnalysis(ctx context.Context, a journal.Analysis) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writable(); err != nil {
		return err
	}
	a.Moves = append([]journal.RankedMove(nil), a.Moves...)
	j.analyses[a.Hash] = a
	return nil
}

// Analysis returns the cached analysis for hash.
func (j *Journal) Analysis(ctx context.Context, hash string) (*journal.Analysis, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, journal.ErrClosed
	}
	a, ok := j.analyses[hash]
	if !ok {
		return nil, journal.ErrNotFound
	}
	a.Moves = append([]journal.RankedMove(nil), a.Moves...)
	return &a, nil
}

// AppendDecision appends a decision log entry.
func (j *Journal) AppendDecision(ctx context.Context, d journal.Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writable(); err != nil {
		return err
	}
	j.decisions = append(j.decisions, d)
	return nil
}

// Decisions returns every decision.
func (j *Journal) Decisions(ctx context.Context) ([]journal.Decision, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, journal.ErrClosed
	}
	return append([]journal.Decision(nil), j.decisions...), nil
}

// AppendResult appends a game result.
func (j *Journal) AppendResult(ctx context.Context, r journal.GameResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writable(); err != nil {
		return err
	}
	j.results = append(j.results, r)
	return nil
}

// Results returns every game result.
func (j *Journal) Results(ctx context.Context) ([]journal.GameResult, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, journal.ErrClosed
	}
	return append([]journal.GameResult(nil), j.results...), nil
}

// Counts returns the size of each table.
func (j *Journal) Counts(ctx context.Context) (journal.Counts, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return journal.Counts{}, journal.ErrClosed
	}
	return journal.Counts{
		Mistakes:  len(j.mistakes),
		Analyses:  len(j.analyses),
		Decisions: len(j.decisions),
		Results:   len(j.results),
	}, nil
}

// Close marks the journal closed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return journal.ErrClosed
	}
	j.closed = true
	return nil
}
