package director

import "testing"

func TestPhaseForTurn_BudgetRelative(t *testing.T) {
	// Budget 20 puts the bucket edges exactly on turns 3, 8, 14, and 18.
	tests := []struct {
		turn int
		want Phase
	}{
		{1, PhaseEstablish},
		{2, PhaseEstablish},
		{3, PhaseDevelop},
		{7, PhaseDevelop},
		{8, PhaseEscalate},
		{13, PhaseEscalate},
		{14, PhasePeak},
		{17, PhasePeak},
		{18, PhaseResolve},
		{25, PhaseResolve},
	}
	for _, tt := range tests {
		if got := PhaseForTurn(tt.turn, 20); got != tt.want {
			t.Errorf("PhaseForTurn(%d, 20) = %v, want %v", tt.turn, got, tt.want)
		}
	}
}

func TestPhaseForTurn_NoBudget(t *testing.T) {
	tests := []struct {
		turn int
		want Phase
	}{
		{1, PhaseEstablish},
		{2, PhaseDevelop},
		{4, PhaseDevelop},
		{5, PhaseEscalate},
		{9, PhaseEscalate},
		{10, PhasePeak},
		{14, PhasePeak},
		{15, PhaseResolve},
		{100, PhaseResolve},
	}
	for _, tt := range tests {
		if got := PhaseForTurn(tt.turn, 0); got != tt.want {
			t.Errorf("PhaseForTurn(%d, 0) = %v, want %v", tt.turn, got, tt.want)
		}
	}
}

func TestPhaseForTurn_MonotonicWithinFixedBudget(t *testing.T) {
	for _, budget := range []int{0, 5, 10, 12, 20, 37} {
		prev := PhaseEstablish
		for turn := 1; turn <= 50; turn++ {
			got := PhaseForTurn(turn, budget)
			if got.ordinal() < prev.ordinal() {
				t.Fatalf("budget %d: phase went backward at turn %d: %v after %v",
					budget, turn, got, prev)
			}
			prev = got
		}
	}
}

func TestPhaseForTurn_ShortBudgetReachesResolve(t *testing.T) {
	// Even a tiny budget must hit resolve by its final turn.
	if got := PhaseForTurn(3, 3); got != PhaseResolve {
		t.Errorf("PhaseForTurn(3, 3) = %v, want resolve", got)
	}
}
