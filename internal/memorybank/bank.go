// Package memorybank stores the memory snippets the director decides to keep
// when an episode is closing or done, and recalls them later by semantic
// similarity.
//
// The durable backend (subpackage postgres) embeds each snippet with a
// [embeddings.Provider] and indexes it with pgvector. Embedding failures
// degrade to storing the snippet without a vector — a memory that cannot be
// recalled semantically is still better than a memory lost.
package memorybank

import (
	"context"
	"sync"
	"time"
)

// Snippet is one stored memory excerpt.
type Snippet struct {
	// ID is assigned by the store.
	ID int64

	// SessionID ties the snippet to the session it was captured from.
	SessionID string

	// Content is the truncated evaluation excerpt chosen by the director.
	Content string

	// Embedded reports whether a vector was stored alongside the content.
	Embedded bool

	CreatedAt time.Time
}

// Result is a recalled snippet with its cosine distance to the query
// (smaller is more similar).
type Result struct {
	Snippet
	Distance float64
}

// Bank is the storage interface for memory snippets.
//
// Implementations must be safe for concurrent use.
type Bank interface {
	// Save persists a snippet for the session.
	Save(ctx context.Context, sessionID string, content string) error

	// Recall returns up to topK snippets for the session, most similar to
	// query first. Implementations without vectors may fall back to recency
	// order.
	Recall(ctx context.Context, sessionID string, query string, topK int) ([]Result, error)
}

// Compile-time assertion that MemBank satisfies Bank.
var _ Bank = (*MemBank)(nil)

// MemBank is a thread-safe, in-memory [Bank] for tests and development. It
// stores no vectors; Recall returns the session's snippets newest first.
// The zero value is ready to use.
type MemBank struct {
	mu       sync.Mutex
	nextID   int64
	snippets []Snippet
}

// Save implements [Bank.Save].
func (b *MemBank) Save(_ context.Context, sessionID string, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.snippets = append(b.snippets, Snippet{
		ID:        b.nextID,
		SessionID: sessionID,
		Content:   content,
		CreatedAt: time.Now(),
	})
	return nil
}

// Recall implements [Bank.Recall] with recency ordering; query is ignored.
func (b *MemBank) Recall(_ context.Context, sessionID string, _ string, topK int) ([]Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Result
	for i := len(b.snippets) - 1; i >= 0 && (topK <= 0 || len(out) < topK); i-- {
		if b.snippets[i].SessionID == sessionID {
			out = append(out, Result{Snippet: b.snippets[i]})
		}
	}
	return out, nil
}

// Len returns the number of stored snippets across all sessions.
func (b *MemBank) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.snippets)
}
