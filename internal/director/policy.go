package director

import "github.com/arcsong/arcsong/internal/episode"

// memoryExcerptLimit caps how much of the raw evaluation response is kept as
// a memory snippet.
const memoryExcerptLimit = 500

// defaultRhythmicHint is used when a rhythmic visual fires on a turn whose
// evaluation supplied no hint of its own.
const defaultRhythmicHint = "the current moment"

// DecideActions turns one evaluation into concrete actions under the
// episode's policy. turn is the 1-based index of the exchange just evaluated.
//
// DecideActions is pure and total: identical inputs always yield identical
// actions, and every input is handled — the caller is expected to pass a
// normalized config ([episode.Config.Normalized]), but an unnormalized one
// only degrades to the same conservative defaults.
func DecideActions(ev Evaluation, cfg episode.Config, turn int) Actions {
	cfg = cfg.Normalized()

	var actions Actions
	actions.VisualType = VisualNone

	switch cfg.SceneMode {
	case episode.ScenePeaks:
		if ev.VisualType != VisualNone && ev.VisualType.IsValid() {
			actions.VisualType = ev.VisualType
			actions.VisualHint = ev.VisualHint
		}
	case episode.SceneRhythmic:
		if turn > 0 && turn%cfg.SceneInterval == 0 {
			actions.VisualType = ev.VisualType
			actions.VisualHint = ev.VisualHint
			if actions.VisualType == VisualNone || !actions.VisualType.IsValid() {
				actions.VisualType = VisualCharacter
			}
			if actions.VisualHint == "" {
				actions.VisualHint = defaultRhythmicHint
			}
		}
	case episode.SceneOff:
		// No visuals, ever.
	}

	if actions.VisualType.Billable() {
		actions.DeductSparks = cfg.SparkCost
	}

	// Completion: a semantic "done" ends the episode, and a configured turn
	// budget is a hard ceiling regardless of what the model thinks.
	if ev.Status == StatusDone {
		actions.SuggestNext = true
	}
	if cfg.TurnBudget > 0 && turn >= cfg.TurnBudget {
		actions.SuggestNext = true
	}

	if (ev.Status == StatusClosing || ev.Status == StatusDone) && ev.RawResponse != "" {
		actions.SaveMemory = true
		actions.MemoryContent = truncate(ev.RawResponse, memoryExcerptLimit)
	}

	return actions
}

// truncate returns s cut to at most limit bytes, avoiding a mid-rune cut.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
