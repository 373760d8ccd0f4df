// Package episode provides episode template definitions for Arcsong.
//
// An episode template is the per-episode policy the director reads but never
// writes: the turn budget, scene-generation mode, spark pricing, genre, and
// the situation/dramatic-question text that seed guidance and evaluation.
// Templates are defined in YAML catalog files ([LoadCatalogFile]) or created
// by the authoring layer at runtime.
//
// All catalog operations are safe for concurrent use.
package episode

// SceneMode selects how the director requests visuals during an episode.
type SceneMode string

const (
	// SceneOff disables automatic visuals entirely.
	SceneOff SceneMode = "off"

	// ScenePeaks requests a visual whenever the evaluation detects a
	// visually significant moment.
	ScenePeaks SceneMode = "peaks"

	// SceneRhythmic requests a visual every SceneInterval turns regardless
	// of content.
	SceneRhythmic SceneMode = "rhythmic"
)

// IsValid reports whether m is a recognised scene mode.
func (m SceneMode) IsValid() bool {
	switch m {
	case SceneOff, ScenePeaks, SceneRhythmic:
		return true
	}
	return false
}

// Default policy values applied by [Config.Normalized] when a field is unset
// or out of range.
const (
	DefaultSceneInterval = 3
	DefaultSparkCost     = 5
)

// Config is the per-episode policy consumed by the director. The zero value
// is usable: [Config.Normalized] fills conservative defaults.
type Config struct {
	// ID identifies the episode template. Empty for ad hoc sessions.
	ID string `yaml:"id" json:"id"`

	// Title is the template's display name.
	Title string `yaml:"title" json:"title"`

	// CharacterName is the display name of the episode's character,
	// surfaced in prompts.
	CharacterName string `yaml:"character_name" json:"character_name"`

	// TurnBudget is the planned episode length in turns. Zero means
	// open-ended; when set, the director ends the episode at this turn
	// regardless of semantic status.
	TurnBudget int `yaml:"turn_budget" json:"turn_budget"`

	// SceneMode selects the visual-generation policy. Unknown values are
	// treated as SceneOff.
	SceneMode SceneMode `yaml:"scene_mode" json:"scene_mode"`

	// SceneInterval is the cadence for SceneRhythmic, in turns.
	SceneInterval int `yaml:"scene_interval" json:"scene_interval"`

	// SparkCost is the spark price of one billable visual.
	SparkCost int `yaml:"spark_cost" json:"spark_cost"`

	// Genre keys into the beat table. Matching is case-, space-, and
	// hyphen-insensitive.
	Genre string `yaml:"genre" json:"genre"`

	// Situation is free text describing the opening circumstances. Its first
	// sentence doubles as the physical anchor in guidance.
	Situation string `yaml:"situation" json:"situation"`

	// DramaticQuestion is the question the episode exists to answer. It
	// biases the post-turn evaluation prompt.
	DramaticQuestion string `yaml:"dramatic_question" json:"dramatic_question"`
}

// Normalized returns a copy of c with defaults applied: an invalid or empty
// SceneMode becomes SceneOff, a non-positive SceneInterval becomes
// DefaultSceneInterval, a non-positive SparkCost becomes DefaultSparkCost,
// and a negative TurnBudget becomes zero (open-ended). Free visuals are not a
// thing a template can express; instruction cards are the free tier.
func (c Config) Normalized() Config {
	if !c.SceneMode.IsValid() {
		c.SceneMode = SceneOff
	}
	if c.SceneInterval <= 0 {
		c.SceneInterval = DefaultSceneInterval
	}
	if c.SparkCost <= 0 {
		c.SparkCost = DefaultSparkCost
	}
	if c.TurnBudget < 0 {
		c.TurnBudget = 0
	}
	return c
}
