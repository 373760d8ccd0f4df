// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/arcsong/arcsong/pkg/provider/llm"
)

// Provider is a test double for [llm.Provider]. Responses are returned in
// registration order; once exhausted, the last response repeats. If Err is
// set it is returned for every call instead.
//
// All fields are guarded by an internal mutex, so a single Provider may be
// shared across goroutines in a test.
type Provider struct {
	mu        sync.Mutex
	responses []string
	idx       int

	// Err, when non-nil, is returned by every Complete call.
	Err error

	// Requests records every request received, in order.
	Requests []llm.CompletionRequest
}

// New creates a mock Provider that replies with the given responses in order.
func New(responses ...string) *Provider {
	return &Provider{responses: responses}
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}

	content := p.responses[p.idx]
	if p.idx < len(p.responses)-1 {
		p.idx++
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// Calls returns the number of Complete invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
