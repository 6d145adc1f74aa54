// Package features computes the fixed-schema feature vector used to
// classify chess positions.
package features

// Schema keys, in the order they are reported.
const (
	KeyPieceCount          = "piece_count"
	KeyPawnStructure       = "pawn_structure"
	KeyCenterControl       = "center_control"
	KeyDevelopment         = "development"
	KeyKingSafety          = "king_safety"
	KeyTacticalOpportunity = "tactical_opportunities"
	KeyComplexity          = "position_complexity"
	KeyMaterialBalance     = "material_balance"
	KeySpaceControl        = "space_control"
	KeyPawnChain           = "pawn_chain_structure"
)

// Keys lists every feature in the schema.
var Keys = []string{
	KeyPieceCount,
	KeyPawnStructure,
	KeyCenterControl,
	KeyDevelopment,
	KeyKingSafety,
	KeyTacticalOpportunity,
	KeyComplexity,
	KeyMaterialBalance,
	KeySpaceControl,
	KeyPawnChain,
}

// Vector holds the features of one position. Every value lies in [0, 1].
type Vector struct {
	PieceCount            float64 `json:"piece_count"`
	PawnStructure         float64 `json:"pawn_structure"`
	CenterControl         float64 `json:"center_control"`
	Development           float64 `json:"development"`
	KingSafety            float64 `json:"king_safety"`
	TacticalOpportunities float64 `json:"tactical_opportunities"`
	Complexity            float64 `json:"position_complexity"`
	MaterialBalance       float64 `json:"material_balance"`
	SpaceControl          float64 `json:"space_control"`
	PawnChain             float64 `json:"pawn_chain_structure"`
}

// Map returns the vector keyed by schema name.
func (v Vector) Map() map[string]float64 {
	return map[string]float64{
		KeyPieceCount:          v.PieceCount,
		KeyPawnStructure:       v.PawnStructure,
		KeyCenterControl:       v.CenterControl,
		KeyDevelopment:         v.Development,
		KeyKingSafety:          v.KingSafety,
		KeyTacticalOpportunity: v.TacticalOpportunities,
		KeyComplexity:          v.Complexity,
		KeyMaterialBalance:     v.MaterialBalance,
		KeySpaceControl:        v.SpaceControl,
		KeyPawnChain:           v.PawnChain,
	}
}

// clamp01 bounds x to [0, 1]. NaN maps to 0.
func clamp01(x float64) float64 {
	switch {
	case x != x:
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
