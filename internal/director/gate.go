package director

import (
	"context"
	"errors"
	"log/slog"

	"github.com/arcsong/arcsong/internal/ledger"
	"github.com/arcsong/arcsong/internal/sessionstore"
)

// sparkFeature is the ledger feature key for episode visuals.
const sparkFeature = "episode_visual"

// ResourceGate makes the policy's costing decision real against the user's
// spark balance. It never raises to the caller: a visual the user cannot pay
// for is downgraded to no visual, with a one-time notice.
//
// The gate is stateless and safe for concurrent use.
type ResourceGate struct {
	ledger ledger.Ledger
	logger *slog.Logger
}

// NewResourceGate creates a ResourceGate on the given ledger.
// A nil logger selects [slog.Default].
func NewResourceGate(l ledger.Ledger, logger *slog.Logger) *ResourceGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceGate{ledger: l, logger: logger}
}

// Apply charges the session owner for the actions' visual, if any. On
// insufficient balance — or any other ledger failure, which is treated the
// same so content is never generated uncharged — the visual is stripped and,
// at most once per session, NeedsSparks is raised. The spark_prompt_shown
// flag is set on sess.Director in memory; the orchestrator persists it.
func (g *ResourceGate) Apply(ctx context.Context, actions Actions, sess *sessionstore.Session) Actions {
	if actions.VisualType == VisualNone || actions.DeductSparks <= 0 {
		return actions
	}

	err := g.ledger.Spend(ctx, ledger.SpendRequest{
		UserID:    sess.UserID,
		Feature:   sparkFeature,
		Cost:      actions.DeductSparks,
		Reference: sess.ID,
		Metadata: map[string]string{
			"visual_type": string(actions.VisualType),
			"episode_id":  sess.EpisodeID,
		},
	})
	if err == nil {
		return actions
	}

	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		// Fail closed: an unreachable ledger must not mint free visuals.
		g.logger.Warn("ledger spend failed, treating as insufficient balance",
			"session_id", sess.ID, "user_id", sess.UserID, "err", err)
	}

	actions.VisualType = VisualNone
	actions.VisualHint = ""
	actions.DeductSparks = 0
	if !sess.Director.SparkPromptShown {
		actions.NeedsSparks = true
		sess.Director.SparkPromptShown = true
	}
	return actions
}
