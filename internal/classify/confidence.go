package classify

import "github.com/discochess/gambit/internal/features"

// Confidence weights. They sum to 1.
const (
	WeightTactical      = 0.25
	WeightPawnStructure = 0.20
	WeightPieceCount    = 0.15
	WeightCenterControl = 0.15
	WeightKingSafety    = 0.15
	WeightDevelopment   = 0.10
)

// Confidence returns a fixed weighted sum of features clamped to [0, 1].
// It is a diagnostic signal and never gates a decision.
func Confidence(v features.Vector) float64 {
	c := WeightTactical*v.TacticalOpportunities +
		WeightPawnStructure*v.PawnStructure +
		WeightPieceCount*v.PieceCount +
		WeightCenterControl*v.CenterControl +
		WeightKingSafety*v.KingSafety +
		WeightDevelopment*v.Development
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
