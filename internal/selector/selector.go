// Package selector decides which move sources to consult for a position and
// how much search budget the engine receives.
package selector

import (
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
)

// Rand is the random source used for book and exploration draws.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

// Input describes the position being decided.
type Input struct {
	// Pieces is the number of pieces on the board, kings included.
	Pieces int

	// Plies is the number of half-moves played before the position.
	Plies int
}

// Plan is the ordered list of sources to try for one decision.
type Plan struct {
	Sources []Source

	// Explored is set when the exploration policy reordered the sources.
	Explored bool
}

// Selector plans source lookups and tracks sources that became unavailable.
// A Selector is safe for concurrent use.
type Selector struct {
	policy Policy
	rng    Rand
	logger *zap.Logger

	mu          sync.RWMutex
	unavailable map[Source]error
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand sets the random source. Defaults to the math/rand/v2 global source.
func WithRand(r Rand) Option {
	return func(s *Selector) { s.rng = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

// New creates a Selector with the given policy.
func New(policy Policy, opts ...Option) *Selector {
	s := &Selector{
		policy:      policy,
		rng:         globalRand{},
		logger:      zap.NewNop(),
		unavailable: make(map[Source]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rand returns the random source used for draws.
func (s *Selector) Rand() Rand {
	return s.rng
}

// Policy returns the selection policy.
func (s *Selector) Policy() Policy {
	return s.policy
}

// Plan returns the sources to try, in order. The search engine is always
// last unless it has been marked unavailable; the endgame database is
// eligible at or below the tablebase cutoff; the repertoire is eligible
// below the book cutoff when a per-call draw falls under the book
// probability.
func (s *Selector) Plan(in Input) Plan {
	var sources []Source

	if in.Pieces <= s.policy.TablebaseCutoff && s.Available(EndgameDatabase) {
		sources = append(sources, EndgameDatabase)
	}
	if in.Plies < s.policy.BookCutoff && s.Available(OpeningRepertoire) {
		if s.rng.Float64() < s.policy.BookProbability {
			sources = append(sources, OpeningRepertoire)
		}
	}
	if s.Available(SearchEngine) {
		sources = append(sources, SearchEngine)
	}

	plan := Plan{Sources: sources}
	if s.policy.ExplorationRate > 0 && len(sources) > 1 && s.rng.Float64() < s.policy.ExplorationRate {
		i := s.rng.IntN(len(sources))
		if i > 0 {
			picked := sources[i]
			copy(sources[1:i+1], sources[:i])
			sources[0] = picked
		}
		plan.Explored = true
		s.logger.Debug("exploring source", zap.Stringer("source", sources[0]))
	}
	return plan
}

// MarkUnavailable excludes a source from every later plan.
func (s *Selector) MarkUnavailable(src Source, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unavailable[src]; ok {
		return
	}
	s.unavailable[src] = reason
	s.logger.Warn("source marked unavailable",
		zap.Stringer("source", src),
		zap.Error(reason),
	)
}

// Available reports whether src may still be planned.
func (s *Selector) Available(src Source) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, down := s.unavailable[src]
	return !down
}

// Unavailable returns the sources marked unavailable and why.
func (s *Selector) Unavailable() map[Source]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Source]error, len(s.unavailable))
	for k, v := range s.unavailable {
		out[k] = v
	}
	return out
}

// WeightedChoice picks one item with probability proportional to its
// weight. Items with a non-positive weight are never picked. The draw is
// uniform in [0, total) and the first item whose cumulative weight exceeds
// it wins. ok is false when no item has a positive weight.
func WeightedChoice[T any](items []T, weight func(T) int, rng Rand) (item T, ok bool) {
	total := 0
	for _, it := range items {
		if w := weight(it); w > 0 {
			total += w
		}
	}
	if total == 0 {
		return item, false
	}

	r := rng.Float64() * float64(total)
	cum := 0
	for _, it := range items {
		w := weight(it)
		if w <= 0 {
			continue
		}
		cum += w
		if float64(cum) > r {
			return it, true
		}
	}

	// Unreachable for draws in [0,1); guards against a misbehaving Rand.
	for i := len(items) - 1; i >= 0; i-- {
		if weight(items[i]) > 0 {
			return items[i], true
		}
	}
	return item, false
}
