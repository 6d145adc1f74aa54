// Package diskjournal implements a journal as append-only JSONL files in a
// directory, one file per table. Writers across processes are serialized
// with an exclusive file lock; readers take a shared lock.
package diskjournal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/discochess/gambit/internal/journal"
)

// Table file names.
const (
	MistakesFile  = "mistakes.jsonl"
	AnalysesFile  = "analyses.jsonl"
	DecisionsFile = "decisions.jsonl"
	ResultsFile   = "results.jsonl"
	lockFile      = ".lock"
)

// Compile-time check that Journal implements journal.Journal.
var _ journal.Journal = (*Journal)(nil)

// Journal is a directory-backed journal. Mistakes and analyses are indexed
// in memory when the journal is opened and kept current with local writes.
type Journal struct {
	dir    string
	lock   *flock.Flock
	logger *zap.Logger

	mu       sync.RWMutex
	closed   bool
	mistakes []journal.Mistake
	byHash   map[string][]int
	analyses map[string]journal.Analysis
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used to report skipped lines.
func WithLogger(l *zap.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// Open opens or creates a journal in dir and loads its indexes.
func Open(ctx context.Context, dir string, opts ...Option) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	j := &Journal{
		dir:      dir,
		lock:     flock.New(filepath.Join(dir, lockFile)),
		logger:   zap.NewNop(),
		byHash:   make(map[string][]int),
		analyses: make(map[string]journal.Analysis),
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := j.load(ctx); err != nil {
		j.lock.Close()
		return nil, err
	}

	j.logger.Debug("journal opened",
		zap.String("dir", dir),
		zap.Int("mistakes", len(j.mistakes)),
		zap.Int("analyses", len(j.analyses)),
	)
	return j, nil
}

func (j *Journal) load(ctx context.Context) error {
	if err := j.lock.RLock(); err != nil {
		return fmt.Errorf("locking journal: %w", err)
	}
	defer j.lock.Unlock()

	var mistakes []journal.Mistake
	if err := readLines(ctx, j.path(MistakesFile), &mistakes, j.skip(MistakesFile)); err != nil {
		return err
	}
	for _, m := range mistakes {
		j.indexMistake(m)
	}

	var analyses []journal.Analysis
	if err := readLines(ctx, j.path(AnalysesFile), &analyses, j.skip(AnalysesFile)); err != nil {
		return err
	}
	for _, a := range analyses {
		j.analyses[a.Hash] = a
	}
	return nil
}

func (j *Journal) indexMistake(m journal.Mistake) {
	j.byHash[m.PositionHash] = append(j.byHash[m.PositionHash], len(j.mistakes))
	j.mistakes = append(j.mistakes, m)
}

func (j *Journal) skip(table string) func(line int, err error) {
	return func(line int, err error) {
		j.logger.Warn("skipping unreadable journal line",
			zap.String("table", table),
			zap.Int("line", line),
			zap.Error(err),
		)
	}
}

func (j *Journal) path(name string) string {
	return filepath.Join(j.dir, name)
}

// append writes v as one JSON line to the named table under the exclusive lock.
func (j *Journal) append(ctx context.Context, name string, v any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	line = append(line, '\n')

	if err := j.lock.Lock(); err != nil {
		return fmt.Errorf("locking journal: %w", err)
	}
	defer j.lock.Unlock()

	f, err := os.OpenFile(j.path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	return f.Close()
}

// readTable reads every line of a table under the shared lock.
func readTable[T any](ctx context.Context, j *Journal, name string) ([]T, error) {
	if err := j.lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking journal: %w", err)
	}
	defer j.lock.Unlock()

	var out []T
	if err := readLines(ctx, j.path(name), &out, j.skip(name)); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendMistake appends a mistake record and indexes it.
func (j *Journal) AppendMistake(ctx context.Context, m journal.Mistake) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return journal.ErrClosed
	}
	if err := j.append(ctx, MistakesFile, m); err != nil {
		return err
	}
	j.indexMistake(m)
	return nil
}

// Mistakes returns every mistake record known to this journal.
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
	idx := j.byHash[hash]
	out := make([]journal.Mistake, 0, len(idx))
	for _, i := range idx {
		out = append(out, j.mistakes[i])
	}
	return out, nil
}

// PutAnalysis appends an analysis; the latest one per hash wins on load.
func (j *Journal) PutAnalysis(ctx context.Context, a journal.Analysis) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return journal.ErrClosed
	}
	if err := j.append(ctx, AnalysesFile, a); err != nil {
		return err
	}
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
	return &a, nil
}

// AppendDecision appends a decision log entry.
func (j *Journal) AppendDecision(ctx context.Context, d journal.Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return journal.ErrClosed
	}
	return j.append(ctx, DecisionsFile, d)
}

// Decisions reads every decision from disk, including other writers' entries.
func (j *Journal) Decisions(ctx context.Context) ([]journal.Decision, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, journal.ErrClosed
	}
	return readTable[journal.Decision](ctx, j, DecisionsFile)
}

// AppendResult appends a game result.
func (j *Journal) AppendResult(ctx context.Context, r journal.GameResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return journal.ErrClosed
	}
	return j.append(ctx, ResultsFile, r)
}

// Results reads every game result from disk.
func (j *Journal) Results(ctx context.Context) ([]journal.GameResult, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, journal.ErrClosed
	}
	return readTable[journal.GameResult](ctx, j, ResultsFile)
}

// Counts returns the size of each table.
func (j *Journal) Counts(ctx context.Context) (journal.Counts, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return journal.Counts{}, journal.ErrClosed
	}

	decisions, err := countLines(j.path(DecisionsFile))
	if err != nil {
		return journal.Counts{}, err
	}
	results, err := countLines(j.path(ResultsFile))
	if err != nil {
		return journal.Counts{}, err
	}
	return journal.Counts{
		Mistakes:  len(j.mistakes),
		Analyses:  len(j.analyses),
		Decisions: decisions,
		Results:   results,
	}, nil
}

// Close releases the lock file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return journal.ErrClosed
	}
	j.closed = true
	return j.lock.Close()
}

// readLines decodes each JSON line of path into out. A missing file is
// empty. Lines that fail to decode, such as a torn final write, are passed
// to skip and ignored.
func readLines[T any](ctx context.Context, path string, out *[]T, skip func(int, error)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	n := 0
	for scanner.Scan() {
		n++
		if n%1000 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			skip(n, err)
			continue
		}
		*out = append(*out, v)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	return n, scanner.Err()
}
