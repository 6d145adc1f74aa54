// Package classify maps feature vectors to position types and scores
// classification confidence.
package classify

import (
	"fmt"

	"github.com/discochess/gambit/internal/features"
)

// Tag is a position type. The zero value is Simple.
type Tag int

const (
	Simple Tag = iota
	Opening
	Tactical
	StrategicClosed
	StrategicOpen
	Critical
	Endgame
	Complex
)

var tagNames = map[Tag]string{
	Simple:          "simple",
	Opening:         "opening",
	Tactical:        "tactical",
	StrategicClosed: "strategic_closed",
	StrategicOpen:   "strategic_open",
	Critical:        "critical",
	Endgame:         "endgame",
	Complex:         "complex",
}

// Tags lists every position type.
var Tags = []Tag{Opening, Tactical, StrategicClosed, StrategicOpen, Critical, Endgame, Complex, Simple}

// String returns the snake-case name of the tag.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// ParseTag parses a snake-case tag name.
func ParseTag(s string) (Tag, error) {
	for t, name := range tagNames {
		if name == s {
			return t, nil
		}
	}
	return Simple, fmt.Errorf("classify: unknown position type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tag) UnmarshalText(b []byte) error {
	parsed, err := ParseTag(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Thresholds used by Classify. The first matching rule wins.
const (
	OpeningPlies = 8

	EndgamePieceCount = 0.8

	ClosedPawnStructure = 0.7
	ClosedCenterControl = 0.3
	ClosedComplexity    = 0.6

	CriticalTactical = 0.7
	CriticalMaterial = 0.5

	TacticalThreshold = 0.5

	OpenPawnStructure = 0.6
	OpenSpaceControl  = 0.5

	ComplexThreshold = 0.7

	OpenCenterControl = 0.5
)

// Classify returns the position type for a position with the given number
// of plies played and feature vector. Rules are evaluated in order.
func Classify(plies int, v features.Vector) Tag {
	switch {
	case plies <= OpeningPlies:
		return Opening
	case v.PieceCount >= EndgamePieceCount:
		return Endgame
	case v.PawnStructure >= ClosedPawnStructure &&
		v.CenterControl <= ClosedCenterControl &&
		v.Complexity >= ClosedComplexity:
		return StrategicClosed
	case v.TacticalOpportunities >= CriticalTactical || v.MaterialBalance >= CriticalMaterial:
		return Critical
	case v.TacticalOpportunities >= TacticalThreshold:
		return Tactical
	case v.PawnStructure >= OpenPawnStructure && v.SpaceControl >= OpenSpaceControl:
		return StrategicOpen
	case v.Complexity >= ComplexThreshold:
		return Complex
	case v.CenterControl >= OpenCenterControl:
		return StrategicOpen
	default:
		return Simple
	}
}
