package fieldtype

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps field-type identifiers to descriptors. It is populated once
// during process startup and read-only afterwards; the mutex only guards
// against misuse during initialization.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// Register adds a descriptor to the registry.
func (r *Registry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, d.ID)
	}
	r.types[d.ID] = d
	return nil
}

// Resolve returns the descriptor for a type identifier.
func (r *Registry) Resolve(id string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, id)
	}
	return d, nil
}

// Types returns all registered type identifiers, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
