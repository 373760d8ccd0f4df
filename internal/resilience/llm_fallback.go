package resilience

import (
	"context"
	"log/slog"

	"github.com/arcsong/arcsong/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that delegates to a prioritized
// chain of underlying providers, falling through on failure.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// NewLLMFallback returns a fallback provider with no backends. Add
// backends with [LLMFallback.Add] before use.
func NewLLMFallback(logger *slog.Logger) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup[llm.Provider](logger)}
}

// Add registers a provider under the given name and priority. Lower
// priority values are tried first.
func (f *LLMFallback) Add(name string, priority int, p llm.Provider, cfg CircuitBreakerConfig) {
	f.group.Add(name, priority, p, cfg)
}

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
