package ledger

import "fmt"

// Severity classifies how far a played move trailed the best move.
type Severity int

const (
	Minor Severity = iota
	Inaccuracy
	Mistake
	Blunder
)

// Evaluation gaps, in pawns, above which each severity applies.
const (
	BlunderGap    = 2.0
	MistakeGap    = 1.0
	InaccuracyGap = 0.5
)

// Margin is how far a played move must trail the best move to be recorded.
const Margin = 0.1

var severityNames = [...]string{
	Minor:      "minor",
	Inaccuracy: "inaccuracy",
	Mistake:    "mistake",
	Blunder:    "blunder",
}

var severityWeights = [...]float64{
	Minor:      0.2,
	Inaccuracy: 0.4,
	Mistake:    0.7,
	Blunder:    1.0,
}

// Severities lists every severity from least to most severe.
var Severities = []Severity{Minor, Inaccuracy, Mistake, Blunder}

// SeverityOf returns the severity of a gap between the best evaluation and
// the played move's evaluation.
func SeverityOf(gap float64) Severity {
	switch {
	case gap > BlunderGap:
		return Blunder
	case gap > MistakeGap:
		return Mistake
	case gap > InaccuracyGap:
		return Inaccuracy
	default:
		return Minor
	}
}

// ShouldRecord reports whether a move evaluated at played trails the best
// evaluation by more than Margin.
func ShouldRecord(played, best float64) bool {
	return played < best-Margin
}

// String returns the severity name.
func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Weight returns the numeric weight of the severity in (0, 1].
func (s Severity) Weight() float64 {
	if s >= 0 && int(s) < len(severityWeights) {
		return severityWeights[s]
	}
	return 0
}

// ParseSeverity parses a severity name.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return Minor, fmt.Errorf("ledger: unknown severity %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
