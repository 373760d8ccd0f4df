// Package director implements the episode director: the per-exchange
// orchestration engine that paces a guided narrative, decides when an exchange
// warrants a visual, when an episode should end, and how those decisions spend
// the owner's spark balance.
//
// All engines in this package are stateless; per-session state lives in
// [sessionstore.Session] and is read and written only by [Director.RunExchange].
package director

// VisualType classifies what kind of image, if any, an exchange warrants.
type VisualType string

const (
	// VisualCharacter is a portrait or action shot of the episode character.
	VisualCharacter VisualType = "character"

	// VisualObject is a close-up of a significant object.
	VisualObject VisualType = "object"

	// VisualAtmosphere is an environment or mood shot.
	VisualAtmosphere VisualType = "atmosphere"

	// VisualInstruction is a text card rather than a rendered image. It is
	// never billed.
	VisualInstruction VisualType = "instruction"

	// VisualNone means no visual for this exchange.
	VisualNone VisualType = "none"
)

// IsValid reports whether v is a recognised visual type.
func (v VisualType) IsValid() bool {
	switch v {
	case VisualCharacter, VisualObject, VisualAtmosphere, VisualInstruction, VisualNone:
		return true
	}
	return false
}

// Billable reports whether generating this visual costs sparks.
// Instruction cards are plain text and free; "none" costs nothing.
func (v VisualType) Billable() bool {
	switch v {
	case VisualCharacter, VisualObject, VisualAtmosphere:
		return true
	}
	return false
}

// EpisodeStatus is the evaluation's judgment of how close the episode is to
// its natural end.
type EpisodeStatus string

const (
	// StatusGoing means the episode has unresolved momentum.
	StatusGoing EpisodeStatus = "going"

	// StatusClosing means the episode is winding down but not finished.
	StatusClosing EpisodeStatus = "closing"

	// StatusDone means the dramatic question has been answered.
	StatusDone EpisodeStatus = "done"
)

// IsValid reports whether s is a recognised episode status.
func (s EpisodeStatus) IsValid() bool {
	switch s {
	case StatusGoing, StatusClosing, StatusDone:
		return true
	}
	return false
}

// Phase is the narrative-position label used to bias tone.
type Phase string

const (
	PhaseEstablish Phase = "establish"
	PhaseDevelop   Phase = "develop"
	PhaseEscalate  Phase = "escalate"
	PhasePeak      Phase = "peak"
	PhaseResolve   Phase = "resolve"
)

// IsValid reports whether p is a recognised pacing phase.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseEstablish, PhaseDevelop, PhaseEscalate, PhasePeak, PhaseResolve:
		return true
	}
	return false
}

// ordinal returns the phase's position in the establish→resolve progression.
// Used by tests to check monotonicity; unknown phases sort first.
func (p Phase) ordinal() int {
	switch p {
	case PhaseEstablish:
		return 0
	case PhaseDevelop:
		return 1
	case PhaseEscalate:
		return 2
	case PhasePeak:
		return 3
	case PhaseResolve:
		return 4
	}
	return -1
}

// Evaluation is the parsed output of one post-turn semantic judgment.
type Evaluation struct {
	// VisualType is the kind of visual the exchange warrants, or VisualNone.
	VisualType VisualType

	// Status is the model's judgment of episode closure.
	Status EpisodeStatus

	// VisualHint is a one-sentence description of the visual. Empty when
	// VisualType is VisualNone.
	VisualHint string

	// RawResponse is the full unparsed model output, retained for memory
	// saving and audit.
	RawResponse string
}

// Actions is the deterministic output of the action policy for one exchange,
// possibly downgraded by the resource gate before execution.
type Actions struct {
	// VisualType is the visual to request downstream, or VisualNone.
	VisualType VisualType

	// VisualHint describes the visual to the downstream generator.
	VisualHint string

	// SuggestNext is true when the episode should offer to end.
	SuggestNext bool

	// DeductSparks is the spark cost actually to be charged. Always zero when
	// VisualType is VisualNone or VisualInstruction.
	DeductSparks int

	// SaveMemory is true when a memory snippet should be persisted.
	SaveMemory bool

	// MemoryContent is the truncated excerpt to save when SaveMemory is true.
	MemoryContent string

	// NeedsSparks is true when the one-time insufficient-balance notice
	// should be shown to the user.
	NeedsSparks bool
}
