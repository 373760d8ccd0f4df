package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store] with the same optimistic
// locking semantics as the durable backends. The zero value is ready to use.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]Session)}
}

// Create implements [Store.Create].
func (m *MemStore) Create(_ context.Context, s *Session) error {
	if s.ID == "" {
		return fmt.Errorf("sessionstore: create: session ID must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions == nil {
		m.sessions = make(map[string]Session)
	}
	if _, exists := m.sessions[s.ID]; exists {
		return fmt.Errorf("sessionstore: create: session %q already exists", s.ID)
	}

	now := time.Now()
	s.Version = 1
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.State == "" {
		s.State = StateActive
	}
	m.sessions[s.ID] = *s
	return nil
}

// Get implements [Store.Get].
func (m *MemStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// Update implements [Store.Update].
func (m *MemStore) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != s.Version {
		return ErrVersionConflict
	}

	s.Version++
	s.UpdatedAt = time.Now()
	s.CreatedAt = stored.CreatedAt
	m.sessions[s.ID] = *s
	return nil
}
