package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arcsong/arcsong/internal/director"
	"github.com/arcsong/arcsong/internal/episode"
	"github.com/arcsong/arcsong/internal/sessionstore"
	"github.com/arcsong/arcsong/pkg/provider/llm"
)

// StartRequest describes a new session to create.
type StartRequest struct {
	// SessionID is optional; a random ID is assigned when empty.
	SessionID string

	// UserID is the owning user. Required.
	UserID string

	// EpisodeID selects an episode template from the catalog. Empty starts
	// an ad hoc session with default pacing.
	EpisodeID string
}

// StartSession creates a new active session. When an episode ID is given it
// must exist in the catalog.
func (a *App) StartSession(ctx context.Context, req StartRequest) (*sessionstore.Session, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("app: start session: user id is required")
	}
	if req.EpisodeID != "" {
		if _, err := a.catalog.Get(ctx, req.EpisodeID); err != nil {
			if errors.Is(err, episode.ErrNotFound) {
				return nil, fmt.Errorf("app: start session: unknown episode %q", req.EpisodeID)
			}
			return nil, fmt.Errorf("app: start session: %w", err)
		}
	}

	sess := &sessionstore.Session{
		ID:        req.SessionID,
		UserID:    req.UserID,
		EpisodeID: req.EpisodeID,
		State:     sessionstore.StateActive,
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if err := a.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("app: start session: %w", err)
	}

	a.logger.Info("session started",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"episode_id", sess.EpisodeID,
	)
	return sess, nil
}

// GetSession returns the current state of a session.
func (a *App) GetSession(ctx context.Context, id string) (*sessionstore.Session, error) {
	return a.sessions.Get(ctx, id)
}

// ExchangeRequest carries one completed exchange to the director.
type ExchangeRequest struct {
	// SessionID identifies the session the exchange belongs to.
	SessionID string

	// History is the conversation so far, oldest first, ending with the
	// response under evaluation.
	History []llm.Message
}

// Exchange runs the director over one completed exchange and returns the
// resulting actions. It is the single entry point a transport calls after
// each assistant response.
func (a *App) Exchange(ctx context.Context, req ExchangeRequest) (*director.ExchangeResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("app: exchange: session id is required")
	}
	return a.director.RunExchange(ctx, req.SessionID, req.History)
}

// Guide returns the pre-turn guidance block for a session: pacing phase,
// genre beat, continuity anchor, and the optional tension note.
func (a *App) Guide(ctx context.Context, sessionID string, history []llm.Message) (director.Guidance, error) {
	return a.director.Guide(ctx, sessionID, history)
}
