package filter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrDuplicate is returned when a filter UUID or name is registered twice.
var ErrDuplicate = errors.New("filter already registered")

// Registry maps filter UUIDs to prototype instances. Lookups hand out
// clones so callers never share a prototype.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Filter
	byName map[string]uuid.UUID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]Filter),
		byName: make(map[string]uuid.UUID),
	}
}

// Register adds prototype f.
func (r *Registry) Register(f Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := f.UUID()
	if id == uuid.Nil {
		return fmt.Errorf("register %s: nil uuid", f.Name())
	}
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("register %s: %w: uuid %s", f.Name(), ErrDuplicate, id)
	}
	if _, ok := r.byName[f.Name()]; ok {
		return fmt.Errorf("register %s: %w: name", f.Name(), ErrDuplicate)
	}
	r.byID[id] = f
	r.byName[f.Name()] = id
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(fs ...Filter) {
	for _, f := range fs {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// New returns a fresh instance of the filter with the given UUID.
func (r *Registry) New(id uuid.UUID) (Filter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// NewByName returns a fresh instance of the filter with the given name.
func (r *Registry) NewByName(name string) (Filter, bool) {
	r.mu.RLock()
	id, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.New(id)
}

// List returns one instance of every registered filter, sorted by name.
func (r *Registry) List() []Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Filter, 0, len(r.byID))
	for _, f := range r.byID {
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered filters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
