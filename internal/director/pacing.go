package director

// Budget-relative phase thresholds. A turn at position p (turn/budget) maps to
// the first phase whose upper bound exceeds p; beyond 0.9 the phase is resolve.
const (
	establishUntil = 0.15
	developUntil   = 0.4
	escalateUntil  = 0.7
	peakUntil      = 0.9
)

// PhaseForTurn maps a 1-based turn index to a pacing phase.
//
// When turnBudget > 0 the phase is derived from relative position
// turn/turnBudget with bucket bounds [0,0.15) establish, [0.15,0.4) develop,
// [0.4,0.7) escalate, [0.7,0.9) peak, [0.9,∞) resolve. Without a budget,
// fixed turn counts are used instead: <2 establish, <5 develop, <10 escalate,
// <15 peak, else resolve.
//
// The phase is recomputed from position on every turn rather than advanced as
// a state machine, so a mid-episode budget change can move it backward. That
// is accepted: pacing tracks where the story is relative to its planned
// length, not how far it has already escalated.
func PhaseForTurn(turn int, turnBudget int) Phase {
	if turnBudget > 0 {
		position := float64(turn) / float64(turnBudget)
		switch {
		case position < establishUntil:
			return PhaseEstablish
		case position < developUntil:
			return PhaseDevelop
		case position < escalateUntil:
			return PhaseEscalate
		case position < peakUntil:
			return PhasePeak
		default:
			return PhaseResolve
		}
	}

	switch {
	case turn < 2:
		return PhaseEstablish
	case turn < 5:
		return PhaseDevelop
	case turn < 10:
		return PhaseEscalate
	case turn < 15:
		return PhasePeak
	default:
		return PhaseResolve
	}
}
