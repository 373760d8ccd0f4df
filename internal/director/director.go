package director

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arcsong/arcsong/internal/episode"
	"github.com/arcsong/arcsong/internal/observe"
	"github.com/arcsong/arcsong/internal/sessionstore"
	"github.com/arcsong/arcsong/pkg/provider/llm"
)

// ErrSessionComplete is returned when an exchange arrives for a session that
// has already reached its terminal state.
var ErrSessionComplete = errors.New("director: session is complete")

// casRetries bounds how often a losing writer re-reads and retries the final
// session write before giving up.
const casRetries = 3

// MemorySink receives the memory snippets the policy decides to keep.
// Implementations must be safe for concurrent use.
type MemorySink interface {
	// Save persists a snippet for the session. Failures are logged by the
	// director, not surfaced to the exchange.
	Save(ctx context.Context, sessionID string, content string) error
}

// Config wires a [Director]. Sessions, Guidance, Evaluation, and Gate are
// required; Catalog, Memory, Metrics, and Logger are optional.
type Config struct {
	Sessions   sessionstore.Store
	Catalog    episode.Catalog
	Guidance   *GuidanceGenerator
	Evaluation *EvaluationEngine
	Gate       *ResourceGate
	Memory     MemorySink
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

// Director sequences one exchange through the engines: pacing and guidance
// before the turn, evaluation, policy, and the resource gate after it, with
// one compare-and-swap session write at the end.
//
// Director holds no per-session state and is safe for concurrent use across
// sessions. Within a single session the store's version token serializes
// writers; the contract still assumes at most one in-flight exchange per
// session.
type Director struct {
	sessions sessionstore.Store
	catalog  episode.Catalog
	guidance *GuidanceGenerator
	eval     *EvaluationEngine
	gate     *ResourceGate
	memory   MemorySink
	metrics  *observe.Metrics
	logger   *slog.Logger
}

// New creates a Director from cfg. Collaborators are injected here; the
// director keeps no ambient global state.
func New(cfg Config) (*Director, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("director: Sessions is required")
	}
	if cfg.Guidance == nil {
		return nil, fmt.Errorf("director: Guidance is required")
	}
	if cfg.Evaluation == nil {
		return nil, fmt.Errorf("director: Evaluation is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("director: Gate is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Director{
		sessions: cfg.Sessions,
		catalog:  cfg.Catalog,
		guidance: cfg.Guidance,
		eval:     cfg.Evaluation,
		gate:     cfg.Gate,
		memory:   cfg.Memory,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// ExchangeResult is everything the transport layer needs after one exchange:
// the gated actions to execute downstream, the evaluation they derive from,
// and the persisted session.
type ExchangeResult struct {
	Actions    Actions
	Evaluation Evaluation
	Session    *sessionstore.Session
}

// Guide composes the pre-turn directive for the narrative generator. history
// is the conversation so far; the guidance covers the turn about to be
// produced (TurnCount+1).
//
// Guide soft-fails internally (a missing tension note degrades the
// directive); the only errors it returns are session/catalog lookup failures.
func (d *Director) Guide(ctx context.Context, sessionID string, history []llm.Message) (Guidance, error) {
	start := time.Now()

	sess, err := d.sessions.Get(ctx, sessionID)
	if err != nil {
		return Guidance{}, fmt.Errorf("director: guide: %w", err)
	}
	if sess.State == sessionstore.StateComplete {
		return Guidance{}, ErrSessionComplete
	}

	cfg, err := d.episodeConfig(ctx, sess)
	if err != nil {
		return Guidance{}, fmt.Errorf("director: guide: %w", err)
	}

	g := d.guidance.Generate(ctx, history, cfg, sess.TurnCount+1)

	if d.metrics != nil {
		d.metrics.GuidanceDuration.Record(ctx, time.Since(start).Seconds())
	}
	return g, nil
}

// RunExchange processes the exchange that just finished: it evaluates the
// latest turn, decides and gates actions, merges the director state, and
// persists the session in one compare-and-swap write.
//
// Provider failures and malformed model output never fail the exchange; only
// persistence and lookup errors do.
func (d *Director) RunExchange(ctx context.Context, sessionID string, history []llm.Message) (*ExchangeResult, error) {
	start := time.Now()
	if d.metrics != nil {
		d.metrics.ActiveSessions.Add(ctx, 1)
		defer d.metrics.ActiveSessions.Add(ctx, -1)
	}

	sess, err := d.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("director: run exchange: %w", err)
	}
	if sess.State == sessionstore.StateComplete {
		return nil, ErrSessionComplete
	}

	cfg, err := d.episodeConfig(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("director: run exchange: %w", err)
	}

	turn := sess.TurnCount + 1

	evalStart := time.Now()
	ev := d.eval.Evaluate(ctx, history, cfg)
	if d.metrics != nil {
		d.metrics.EvaluationDuration.Record(ctx, time.Since(evalStart).Seconds())
	}

	actions := DecideActions(ev, cfg, turn)
	actions = d.gate.Apply(ctx, actions, sess)

	if err := d.persist(ctx, sess, cfg, ev, &actions, turn); err != nil {
		return nil, fmt.Errorf("director: run exchange: %w", err)
	}

	if actions.SaveMemory && d.memory != nil {
		if err := d.memory.Save(ctx, sess.ID, actions.MemoryContent); err != nil {
			d.logger.Warn("memory save failed", "session_id", sess.ID, "err", err)
		}
	}

	d.record(ctx, sess, actions)
	if d.metrics != nil {
		d.metrics.ExchangeDuration.Record(ctx, time.Since(start).Seconds())
	}

	return &ExchangeResult{Actions: actions, Evaluation: ev, Session: sess}, nil
}

// persist merges the exchange outcome into the session and writes it. On a
// version conflict it re-reads and re-merges onto the fresh state — the spend
// already happened and must not be repeated, so only the merge is redone.
func (d *Director) persist(ctx context.Context, sess *sessionstore.Session, cfg episode.Config, ev Evaluation, actions *Actions, turn int) error {
	for attempt := 0; ; attempt++ {
		d.merge(sess, cfg, ev, actions, turn)

		err := d.sessions.Update(ctx, sess)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sessionstore.ErrVersionConflict) || attempt >= casRetries {
			return err
		}

		d.logger.Warn("session write conflict, re-merging",
			"session_id", sess.ID, "attempt", attempt+1)

		fresh, gerr := d.sessions.Get(ctx, sess.ID)
		if gerr != nil {
			return gerr
		}
		if fresh.State == sessionstore.StateComplete {
			// A concurrent exchange finished the episode; nothing left to
			// merge onto.
			*sess = *fresh
			return ErrSessionComplete
		}
		// Keep the spark flag raised by the gate, then merge onto the fresh
		// read with a recomputed turn index.
		fresh.Director.SparkPromptShown = fresh.Director.SparkPromptShown || sess.Director.SparkPromptShown
		*sess = *fresh
		turn = sess.TurnCount + 1
	}
}

// merge applies one exchange's outcome to the session in memory: the turn
// increment, the evaluation summary, and — when the actions end the episode —
// the terminal state and its trigger.
func (d *Director) merge(sess *sessionstore.Session, cfg episode.Config, ev Evaluation, actions *Actions, turn int) {
	sess.TurnCount = turn
	sess.Director.LastStatus = string(ev.Status)
	sess.Director.LastVisualType = string(ev.VisualType)
	sess.Director.LastEvaluatedTurn = turn

	// The budget ceiling may only now be reached if a concurrent exchange
	// advanced the turn count between our read and this merge.
	if cfg.TurnBudget > 0 && turn >= cfg.TurnBudget {
		actions.SuggestNext = true
	}

	if !actions.SuggestNext {
		return
	}

	sess.State = sessionstore.StateComplete
	switch {
	case ev.Status == StatusDone:
		sess.CompletionTrigger = sessionstore.TriggerSemantic
	case cfg.TurnBudget > 0 && turn >= cfg.TurnBudget:
		sess.CompletionTrigger = sessionstore.TriggerTurnLimit
	default:
		// suggest_next with no known trigger is a bug: log loudly, keep the
		// session consistent, and complete it anyway.
		d.logger.Error("episode completing with no completion trigger",
			"session_id", sess.ID, "turn", turn, "status", ev.Status)
		if d.metrics != nil {
			d.metrics.InvariantViolations.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("invariant", "completion_trigger")))
		}
		sess.CompletionTrigger = sessionstore.TriggerSemantic
	}
}

// record emits per-exchange counters.
func (d *Director) record(ctx context.Context, sess *sessionstore.Session, actions Actions) {
	if d.metrics == nil {
		return
	}
	if actions.VisualType != VisualNone {
		d.metrics.VisualsRequested.Add(ctx, 1,
			metric.WithAttributes(attribute.String("visual_type", string(actions.VisualType))))
	}
	if actions.DeductSparks > 0 {
		d.metrics.SparksSpent.Add(ctx, int64(actions.DeductSparks))
	}
	if actions.NeedsSparks {
		d.metrics.SparkDenials.Add(ctx, 1)
	}
	if sess.State == sessionstore.StateComplete {
		d.metrics.EpisodesCompleted.Add(ctx, 1,
			metric.WithAttributes(attribute.String("trigger", string(sess.CompletionTrigger))))
	}
}

// episodeConfig resolves the session's episode template, or a normalized
// zero config for ad hoc sessions. Unknown config never fails an exchange.
func (d *Director) episodeConfig(ctx context.Context, sess *sessionstore.Session) (episode.Config, error) {
	if sess.EpisodeID == "" || d.catalog == nil {
		return episode.Config{}.Normalized(), nil
	}
	cfg, err := d.catalog.Get(ctx, sess.EpisodeID)
	if err != nil {
		if errors.Is(err, episode.ErrNotFound) {
			d.logger.Warn("episode template missing, using defaults",
				"session_id", sess.ID, "episode_id", sess.EpisodeID)
			return episode.Config{}.Normalized(), nil
		}
		return episode.Config{}, err
	}
	return cfg.Normalized(), nil
}
