package selector

import (
	"fmt"
	"time"

	"github.com/discochess/gambit/internal/classify"
	"github.com/discochess/gambit/internal/features"
)

// Policy holds the cutoffs and budgets used for source selection.
type Policy struct {
	// TablebaseCutoff is the largest piece count, kings included, for
	// which the endgame database is consulted.
	TablebaseCutoff int

	// BookCutoff is the ply count below which the repertoire is eligible.
	BookCutoff int

	// BookProbability is the chance that an eligible repertoire is consulted.
	BookProbability float64

	// ExplorationRate is the chance that a random eligible source is tried
	// first. Zero disables exploration.
	ExplorationRate float64

	// BaseTime and BaseDepth are the search budget before adjustments.
	BaseTime  time.Duration
	BaseDepth int
}

// Budget adjustments applied by Policy.Budget.
const (
	ComplexTimeFactor  = 1.5
	ComplexExtraDepth  = 10
	CriticalTimeFactor = 2.0
	CriticalExtraDepth = 15
	EndgameTimeFactor  = 0.7
	EndgameExtraDepth  = 5
)

// DefaultPolicy returns the default selection policy.
func DefaultPolicy() Policy {
	return Policy{
		TablebaseCutoff: 6,
		BookCutoff:      15,
		BookProbability: 0.8,
		BaseTime:        2 * time.Second,
		BaseDepth:       20,
	}
}

// Validate reports whether the policy is usable.
func (p Policy) Validate() error {
	switch {
	case p.TablebaseCutoff < 0:
		return fmt.Errorf("selector: tablebase cutoff must be >= 0, got %d", p.TablebaseCutoff)
	case p.BookCutoff < 0:
		return fmt.Errorf("selector: book cutoff must be >= 0, got %d", p.BookCutoff)
	case p.BookProbability < 0 || p.BookProbability > 1:
		return fmt.Errorf("selector: book probability must be in [0,1], got %v", p.BookProbability)
	case p.ExplorationRate < 0 || p.ExplorationRate > 1:
		return fmt.Errorf("selector: exploration rate must be in [0,1], got %v", p.ExplorationRate)
	case p.BaseTime <= 0:
		return fmt.Errorf("selector: base time must be positive, got %v", p.BaseTime)
	case p.BaseDepth <= 0:
		return fmt.Errorf("selector: base depth must be positive, got %d", p.BaseDepth)
	}
	return nil
}

// Budget is the time and depth allotted to one engine search.
type Budget struct {
	Time  time.Duration
	Depth int
}

// Budget derives the search budget from the position type and features.
// Time factors compose multiplicatively and depth bonuses additively.
func (p Policy) Budget(tag classify.Tag, v features.Vector) Budget {
	secs := p.BaseTime.Seconds()
	depth := p.BaseDepth

	if v.Complexity >= classify.ComplexThreshold {
		secs *= ComplexTimeFactor
		depth += ComplexExtraDepth
	}
	switch tag {
	case classify.Critical:
		secs *= CriticalTimeFactor
		depth += CriticalExtraDepth
	case classify.Endgame:
		secs *= EndgameTimeFactor
		depth += EndgameExtraDepth
	}

	return Budget{
		Time:  time.Duration(secs * float64(time.Second)),
		Depth: depth,
	}
}
