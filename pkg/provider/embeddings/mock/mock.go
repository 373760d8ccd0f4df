// Package mock provides a deterministic embeddings.Provider for tests.
package mock

import (
	"context"

	"github.com/arcsong/arcsong/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a test double for [embeddings.Provider]. It returns a
// deterministic vector derived from the input text so tests can assert on
// stable values without a live backend.
type Provider struct {
	// Dims is the vector length to produce. Defaults to 4 when zero.
	Dims int

	// Err, when non-nil, is returned by every Embed call.
	Err error

	// Texts records every embedded text, in order.
	Texts []string
}

// Embed implements [embeddings.Provider]. The i-th component of the returned
// vector is byte i of the text (modulo length), scaled to [0,1).
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	dims := p.Dims
	if dims == 0 {
		dims = 4
	}
	vec := make([]float32, dims)
	if len(text) == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(text[i%len(text)]) / 256
	}
	return vec, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return 4
	}
	return p.Dims
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string {
	return "mock-embed"
}
