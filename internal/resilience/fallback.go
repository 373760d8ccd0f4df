package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrAllFailed is returned when every entry in a fallback group has
// been tried and none succeeded.
var ErrAllFailed = errors.New("resilience: all fallbacks failed")

type fallbackEntry[T any] struct {
	name     string
	priority int
	target   T
	breaker  *CircuitBreaker
}

// FallbackGroup tries a set of equivalent backends in priority order,
// each behind its own circuit breaker. Lower priority values are
// tried first.
type FallbackGroup[T any] struct {
	mu      sync.RWMutex
	entries []fallbackEntry[T]
	logger  *slog.Logger
}

// NewFallbackGroup returns an empty group. A nil logger disables
// fallback logging.
func NewFallbackGroup[T any](logger *slog.Logger) *FallbackGroup[T] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FallbackGroup[T]{logger: logger}
}

// Add registers a backend under the given name and priority.
func (g *FallbackGroup[T]) Add(name string, priority int, target T, cfg CircuitBreakerConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cfg.Name == "" {
		cfg.Name = name
	}
	g.entries = append(g.entries, fallbackEntry[T]{
		name:     name,
		priority: priority,
		target:   target,
		breaker:  NewCircuitBreaker(cfg),
	})
	sort.SliceStable(g.entries, func(i, j int) bool {
		return g.entries[i].priority < g.entries[j].priority
	})
}

// Len reports the number of registered backends.
func (g *FallbackGroup[T]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// ExecuteWithResult runs fn against each backend in priority order
// until one succeeds. It is a package function because Go methods
// cannot introduce their own type parameters.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(target T) (R, error)) (R, error) {
	g.mu.RLock()
	entries := make([]fallbackEntry[T], len(g.entries))
	copy(entries, g.entries)
	g.mu.RUnlock()

	var zero R
	if len(entries) == 0 {
		return zero, fmt.Errorf("%w: no backends registered", ErrAllFailed)
	}

	var errs []error
	for _, e := range entries {
		var result R
		err := e.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(e.target)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		g.logger.Warn("backend failed, trying next",
			"backend", e.name,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
