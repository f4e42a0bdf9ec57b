package app

import (
	"sort"
	"sync"

	"wsbridge/internal/bridge"
)

// Registry tracks live bridges by connection id
type Registry struct {
	mu      sync.RWMutex
	bridges map[string]*bridge.Bridge
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		bridges: make(map[string]*bridge.Bridge),
	}
}

// Add registers b under its id
func (r *Registry) Add(b *bridge.Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges[b.ID()] = b
}

// Remove deregisters the bridge with id
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bridges, id)
}

// Get returns the bridge with id
func (r *Registry) Get(id string) (*bridge.Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[id]
	return b, ok
}

// Len returns the number of registered bridges
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bridges)
}

// IDs returns the registered ids in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.bridges))
	for id := range r.bridges {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
