// Package resilience provides failure-handling primitives for the
// model providers the director depends on: a circuit breaker and a
// prioritized fallback chain.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State describes the current mode of a [CircuitBreaker].
type State int

const (
	// StateClosed means calls pass through normally.
	StateClosed State = iota
	// StateOpen means calls fail fast without reaching the backend.
	StateOpen
	// StateHalfOpen means a limited number of probe calls are allowed.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting it.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name identifies the breaker in errors and logs.
	Name string
	// MaxFailures is the number of consecutive failures that trips
	// the breaker. Defaults to 5.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open before
	// allowing probes. Defaults to 30 seconds.
	ResetTimeout time.Duration
	// HalfOpenMax is the number of successful probes required to
	// close the breaker again. Defaults to 3.
	HalfOpenMax int
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	return c
}

// CircuitBreaker wraps calls to an unreliable backend and fails fast
// after repeated errors instead of piling latency onto every exchange.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	probesInUse int
	now         func() time.Time
}

// NewCircuitBreaker returns a closed breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), now: time.Now}
}

// State reports the breaker's current state, transitioning open to
// half-open when the reset timeout has elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute runs fn through the breaker. In the open state it returns
// [ErrCircuitOpen] without calling fn.
func (b *CircuitBreaker) Execute(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *CircuitBreaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	switch b.state {
	case StateOpen:
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.cfg.Name)
	case StateHalfOpen:
		if b.probesInUse >= b.cfg.HalfOpenMax {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, b.cfg.Name)
		}
		b.probesInUse++
	}
	return nil
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.probesInUse--
		if err != nil {
			b.trip()
			return
		}
		b.successes++
		if b.successes >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	default:
		if err != nil {
			b.failures++
			if b.failures >= b.cfg.MaxFailures {
				b.trip()
			}
			return
		}
		b.failures = 0
	}
}

func (b *CircuitBreaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.probesInUse = 0
}

// maybeHalfOpen must be called with the mutex held.
func (b *CircuitBreaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = StateHalfOpen
		b.successes = 0
		b.probesInUse = 0
	}
}
