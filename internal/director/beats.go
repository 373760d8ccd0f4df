package director

import "strings"

// defaultGenre is used when the configured genre has no entry in the beat table.
const defaultGenre = "drama"

// genericBeat is the fallback line for any phase missing from a genre's row.
const genericBeat = "Stay in the moment; let the scene breathe."

// beatTable maps normalized genre keys to per-phase authorial beat guidance.
// Lines are intentionally short: they are appended verbatim to the narrative
// generator's private instructions.
var beatTable = map[string]map[Phase]string{
	"drama": {
		PhaseEstablish: "Ground the scene in concrete detail; hint at what is unspoken.",
		PhaseDevelop:   "Deepen the relationship; let small frictions surface.",
		PhaseEscalate:  "Force a choice the character would rather avoid.",
		PhasePeak:      "Say the thing that cannot be taken back.",
		PhaseResolve:   "Let the consequences settle; end on a changed note.",
	},
	"romance": {
		PhaseEstablish: "Notice one small, specific thing about the other person.",
		PhaseDevelop:   "Close the distance a little; let a glance linger.",
		PhaseEscalate:  "Interrupt the moment with a complication or a confession.",
		PhasePeak:      "Make the feeling undeniable, in word or in touch.",
		PhaseResolve:   "Hold the quiet afterwards; promise nothing, mean everything.",
	},
	"mystery": {
		PhaseEstablish: "Place one detail that does not quite fit.",
		PhaseDevelop:   "Let a question sharpen; someone knows more than they say.",
		PhaseEscalate:  "Reveal a piece that contradicts what was assumed.",
		PhasePeak:      "Bring the truth within reach, at a cost.",
		PhaseResolve:   "Answer the question, and show what the answer broke.",
	},
	"horror": {
		PhaseEstablish: "Keep things almost normal; one thing is faintly wrong.",
		PhaseDevelop:   "Let the wrongness recur; deny easy explanations.",
		PhaseEscalate:  "Take away an exit; make the threat personal.",
		PhasePeak:      "Show the thing plainly, worse than imagined.",
		PhaseResolve:   "Survive or do not; either way something is left behind.",
	},
	"adventure": {
		PhaseEstablish: "Promise the journey; show what is at stake if they stay.",
		PhaseDevelop:   "Introduce an obstacle that tests a skill or a bond.",
		PhaseEscalate:  "Raise the price of going on; cut off the way back.",
		PhasePeak:      "Spend everything on the decisive attempt.",
		PhaseResolve:   "Count what was won and what it cost.",
	},
	"slice of life": {
		PhaseEstablish: "Begin mid-routine; let texture do the work.",
		PhaseDevelop:   "Find the small event that reshuffles the day.",
		PhaseEscalate:  "Let an ordinary tension grow past comfortable.",
		PhasePeak:      "Have the honest conversation the day was building to.",
		PhaseResolve:   "Return to routine, slightly rearranged.",
	},
	"comedy": {
		PhaseEstablish: "Set one absurd rule and play it straight.",
		PhaseDevelop:   "Escalate the misunderstanding; double down, never explain.",
		PhaseEscalate:  "Collide the two things that were being kept apart.",
		PhasePeak:      "Let the whole tower fall at the worst moment.",
		PhaseResolve:   "Clean up only partially; keep one loose end smiling.",
	},
}

// NormalizeGenre lowercases a genre key and collapses runs of spaces and
// hyphens into a single space, so "Slice-of-Life" and "slice of life" pick
// the same row.
func NormalizeGenre(genre string) string {
	fields := strings.FieldsFunc(strings.ToLower(genre), func(r rune) bool {
		return r == ' ' || r == '-'
	})
	return strings.Join(fields, " ")
}

// BeatFor returns the authorial beat line for the genre and phase. Unknown
// genres fall back to the default genre's row; phases missing from a row fall
// back to a generic line.
func BeatFor(genre string, phase Phase) string {
	row, ok := beatTable[NormalizeGenre(genre)]
	if !ok {
		row = beatTable[defaultGenre]
	}
	if beat, ok := row[phase]; ok {
		return beat
	}
	return genericBeat
}
