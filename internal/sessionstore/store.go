// Package sessionstore defines the session state model and persistence
// interface for Arcsong.
//
// A session is one ongoing engagement between a user and an episode. The
// director is the only writer: after each exchange it bumps the turn count,
// merges its private state, and (when the episode ends) records the terminal
// state and trigger — all through a single compare-and-swap Update so that
// two concurrent exchanges on the same session can never silently clobber
// each other.
//
// Three backends are provided: [MemStore] (tests and single-process use),
// postgres (pgx with a version-column CAS), and redisstore (go-redis with
// WATCH/MULTI optimistic locking).
package sessionstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session ID has no stored record.
var ErrNotFound = errors.New("sessionstore: session not found")

// ErrVersionConflict is returned by Update when the session was modified
// since it was read. The caller should re-read and retry or give up.
var ErrVersionConflict = errors.New("sessionstore: version conflict")

// State is the session lifecycle state.
type State string

const (
	// StateActive means the session accepts further exchanges.
	StateActive State = "active"

	// StateComplete is terminal; a complete session is immutable.
	StateComplete State = "complete"
)

// IsValid reports whether s is a recognised session state.
func (s State) IsValid() bool {
	return s == StateActive || s == StateComplete
}

// CompletionTrigger records why a session completed. Empty while active.
type CompletionTrigger string

const (
	// TriggerSemantic means the evaluation judged the episode done.
	TriggerSemantic CompletionTrigger = "semantic"

	// TriggerTurnLimit means the configured turn budget was reached.
	TriggerTurnLimit CompletionTrigger = "turn_limit"
)

// DirectorState is the director's private per-session state. It is opaque to
// every other subsystem: stores persist it verbatim and never interpret it.
type DirectorState struct {
	// LastStatus is the status signal of the most recent evaluation.
	LastStatus string `json:"last_status,omitempty"`

	// LastVisualType is the visual signal of the most recent evaluation.
	LastVisualType string `json:"last_visual_type,omitempty"`

	// LastEvaluatedTurn is the turn index the last evaluation covered.
	LastEvaluatedTurn int `json:"last_evaluated_turn,omitempty"`

	// SparkPromptShown gates the insufficient-balance notice so it is shown
	// at most once per session.
	SparkPromptShown bool `json:"spark_prompt_shown,omitempty"`
}

// Session is one conversational engagement between a user and an episode.
type Session struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// UserID is the owning user, charged for any visuals.
	UserID string `json:"user_id"`

	// EpisodeID references the episode template, or empty for ad hoc sessions.
	EpisodeID string `json:"episode_id,omitempty"`

	// TurnCount is the number of completed exchanges. It only increases, by
	// exactly one per exchange.
	TurnCount int `json:"turn_count"`

	// Director is the director's private state.
	Director DirectorState `json:"director"`

	// State is the lifecycle state. StateComplete is terminal.
	State State `json:"state"`

	// CompletionTrigger is set if and only if State is StateComplete.
	CompletionTrigger CompletionTrigger `json:"completion_trigger,omitempty"`

	// Version is the optimistic concurrency token. It is assigned by the
	// store on Create and incremented on every successful Update; an Update
	// carrying a stale Version fails with [ErrVersionConflict].
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence interface for sessions.
//
// Implementations must be safe for concurrent use and must enforce the
// Version compare-and-swap on Update.
type Store interface {
	// Create persists a new session. The store sets Version, CreatedAt, and
	// UpdatedAt on the provided session.
	Create(ctx context.Context, s *Session) error

	// Get returns the session with the given ID, or [ErrNotFound].
	Get(ctx context.Context, id string) (*Session, error)

	// Update persists s if and only if the stored Version equals s.Version;
	// on success s.Version is incremented in place. Returns
	// [ErrVersionConflict] when the session changed since it was read, or
	// [ErrNotFound] when it no longer exists.
	Update(ctx context.Context, s *Session) error
}
