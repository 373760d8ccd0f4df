package episode

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a template ID has no entry in the catalog.
var ErrNotFound = errors.New("episode: template not found")

// Catalog is the read-only template lookup the director depends on.
type Catalog interface {
	// Get returns the template with the given ID, or [ErrNotFound].
	Get(ctx context.Context, id string) (Config, error)
}

// Compile-time assertion that MemCatalog satisfies Catalog.
var _ Catalog = (*MemCatalog)(nil)

// MemCatalog is a thread-safe, in-memory [Catalog]. It is suitable for
// single-process deployments and testing. The zero value is ready to use.
type MemCatalog struct {
	mu        sync.RWMutex
	templates map[string]Config
}

// NewMemCatalog returns a [MemCatalog] seeded with the given templates.
// Templates are stored normalized; later entries with duplicate IDs win.
func NewMemCatalog(templates ...Config) *MemCatalog {
	c := &MemCatalog{templates: make(map[string]Config, len(templates))}
	for _, t := range templates {
		c.templates[t.ID] = t.Normalized()
	}
	return c
}

// Get implements [Catalog].
func (c *MemCatalog) Get(_ context.Context, id string) (Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.templates[id]
	if !ok {
		return Config{}, ErrNotFound
	}
	return t, nil
}

// Replace swaps the catalog's entire contents for the given templates,
// normalized. Readers holding the catalog see the new set atomically.
func (c *MemCatalog) Replace(templates ...Config) {
	next := make(map[string]Config, len(templates))
	for _, t := range templates {
		next[t.ID] = t.Normalized()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates = next
}

// Put adds or replaces a template. The stored copy is normalized.
func (c *MemCatalog) Put(t Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.templates == nil {
		c.templates = make(map[string]Config)
	}
	c.templates[t.ID] = t.Normalized()
}

// Len returns the number of templates in the catalog.
func (c *MemCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.templates)
}
