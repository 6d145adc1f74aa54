package engine

import "testing"

func TestScore_Pawns(t *testing.T) {
	tests := []struct {
		name  string
		score Score
		want  float64
	}{
		{"centipawns", Score{Centipawns: 35}, 0.35},
		{"negative", Score{Centipawns: -120}, -1.2},
		{"mate in 3", Score{Mate: 3}, 99.97},
		{"mated in 2", Score{Mate: -2}, -99.98},
		{"mate beats cp", Score{Mate: 10, Centipawns: 50}, 99.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.score.Pawns()
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Pawns() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResult_Eval(t *testing.T) {
	var nilResult *Result
	if _, ok := nilResult.Eval(); ok {
		t.Error("nil Result.Eval() ok = true, want false")
	}

	r := &Result{Lines: []Line{{Move: "e2e4", Score: Score{Centipawns: 20}}}}
	if got, ok := r.Eval(); !ok || got != 0.2 {
		t.Errorf("Eval() = %v, %v, want 0.2, true", got, ok)
	}
}
