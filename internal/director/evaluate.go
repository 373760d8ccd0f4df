package director

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/arcsong/arcsong/internal/episode"
	"github.com/arcsong/arcsong/internal/observe"
	"github.com/arcsong/arcsong/pkg/provider/llm"
)

// evalPairWindow bounds how many recent message pairs the evaluation sees.
const evalPairWindow = 3

// defaultEvalTimeout bounds the judgment call. Unlike the tension note this
// call is load-bearing, so it gets a generous budget.
const defaultEvalTimeout = 20 * time.Second

const evalSystemPrompt = `You are a story editor reviewing the latest exchange of a guided roleplay episode. Judge two things:

1. Whether a generated image would strengthen this moment. Choose exactly one:
   character - a portrait or action shot of %s
   object - a close-up of a significant object
   atmosphere - an environment or mood shot
   instruction - a text card with directions, no image
   none - no visual needed
   If not "none", add a one-sentence description of what the image should show.

2. How close the episode is to answering its dramatic question%s. Choose exactly one:
   going - unresolved momentum remains
   closing - the episode is winding down
   done - the question has been answered

End your reply with a single line in exactly this form:
SIGNAL: [visual: <type>] [status: <value>]
and, if a visual was chosen, append [hint: <description>] on the same line.`

// signalPattern matches the machine-parsable line the evaluation prompt asks
// for. The model does not always comply; parseSignal handles that.
var signalPattern = regexp.MustCompile(`(?i)SIGNAL:\s*\[visual:\s*(character|object|atmosphere|instruction|none)\s*\]\s*\[status:\s*(going|closing|done)\s*\]`)

// hintPattern extracts the optional hint bracket.
var hintPattern = regexp.MustCompile(`(?i)\[hint:\s*([^\]]+)\]`)

// EvaluationEngine makes one post-turn semantic judgment call and reduces the
// model's free-form answer to the fixed [Evaluation] vocabulary.
//
// The engine is stateless and safe for concurrent use.
type EvaluationEngine struct {
	provider llm.Provider
	metrics  *observe.Metrics
	logger   *slog.Logger

	// maxTokens bounds the judgment call. The response only needs a short
	// rationale plus the signal line.
	maxTokens int

	// timeoutNs holds the call timeout in nanoseconds. Atomic so config
	// reloads can retune it while exchanges are in flight.
	timeoutNs atomic.Int64
}

// NewEvaluationEngine creates an EvaluationEngine on the given provider.
// A nil metrics skips instrumentation; a nil logger selects [slog.Default];
// a non-positive timeout selects the 20 second default.
func NewEvaluationEngine(provider llm.Provider, timeout time.Duration, metrics *observe.Metrics, logger *slog.Logger) *EvaluationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &EvaluationEngine{
		provider:  provider,
		metrics:   metrics,
		maxTokens: 300,
		logger:    logger,
	}
	e.SetTimeout(timeout)
	return e
}

// SetTimeout retunes the call timeout. A non-positive value selects the
// default. Safe to call concurrently with Evaluate.
func (e *EvaluationEngine) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultEvalTimeout
	}
	e.timeoutNs.Store(int64(timeout))
}

// Evaluate judges the most recent exchange. history is the full conversation
// in order; only the last few pairs are sent.
//
// Evaluate never returns an error: provider failures produce the safe default
// (no visual, status going, empty raw response) so an exchange can always
// complete, and malformed model output goes through the fallback parser.
func (e *EvaluationEngine) Evaluate(ctx context.Context, history []llm.Message, cfg episode.Config) Evaluation {
	messages := withInstruction(tailMessages(history, evalPairWindow*2),
		"Review the exchange above and reply as instructed.")

	character := cfg.CharacterName
	if character == "" {
		character = "the character"
	}
	question := ""
	if cfg.DramaticQuestion != "" {
		question = fmt.Sprintf(" (%q)", cfg.DramaticQuestion)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.timeoutNs.Load()))
	defer cancel()

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(evalSystemPrompt, character, question),
		Messages:     messages,
		MaxTokens:    e.maxTokens,
		Temperature:  0.2,
	})
	if err != nil {
		e.logger.Warn("evaluation call failed, using safe default", "err", err)
		if e.metrics != nil {
			e.metrics.ProviderErrors.Add(ctx, 1,
				metric.WithAttributes(attribute.String("stage", "evaluation")))
		}
		return Evaluation{VisualType: VisualNone, Status: StatusGoing}
	}

	return parseSignal(resp.Content)
}

// parseSignal reduces a free-form evaluation response to an [Evaluation].
//
// The primary path is a case-insensitive match on the SIGNAL line. When the
// line is missing or malformed the fallback applies: no visual, and status
// done if the word "done" appears anywhere in the response, else going.
// Malformed output is expected, not exceptional; this function never fails.
func parseSignal(response string) Evaluation {
	ev := Evaluation{RawResponse: response}

	m := signalPattern.FindStringSubmatch(response)
	if m == nil {
		ev.VisualType = VisualNone
		if containsWord(response, "done") {
			ev.Status = StatusDone
		} else {
			ev.Status = StatusGoing
		}
		return ev
	}

	ev.VisualType = VisualType(strings.ToLower(m[1]))
	ev.Status = EpisodeStatus(strings.ToLower(m[2]))

	if ev.VisualType != VisualNone {
		if hm := hintPattern.FindStringSubmatch(response); hm != nil {
			ev.VisualHint = strings.TrimSpace(hm[1])
		}
	}
	return ev
}

// containsWord reports whether word occurs in s as a whole word,
// case-insensitively.
func containsWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

// tailMessages returns up to n trailing messages from history.
func tailMessages(history []llm.Message, n int) []llm.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// withInstruction returns messages plus a trailing user instruction in a
// fresh slice. messages may alias a caller's history; appending in place
// could write past its length into the caller's backing array.
func withInstruction(messages []llm.Message, instruction string) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, messages...)
	return append(out, llm.Message{Role: "user", Content: instruction})
}
