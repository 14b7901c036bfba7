// Package capability is the service registry the probe consults for optional
// platform subsystems. A capability is present when a handle has been
// registered under its name; callers never have to know how it was built.
package capability

import (
	"sort"
	"sync"
)

// Well-known optional capabilities
const (
	Features     = "features"
	Domain       = "domain"
	DomainAlias  = "domain_alias"
	Libraries    = "libraries"
	Requirements = "requirements"
)

// Registry holds capability handles keyed by name
type Registry struct {
	handles map[string]any
	mu      sync.RWMutex
}

// NewRegistry creates an empty capability registry
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]any),
	}
}

// Register makes a capability available. Registering a nil handle removes it.
func (r *Registry) Register(name string, handle any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle == nil {
		delete(r.handles, name)
		return
	}
	r.handles[name] = handle
}

// Lookup returns the handle registered under name
func (r *Registry) Lookup(name string) (any, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.handles[name]
	return handle, ok
}

// Has reports whether a capability is present
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns all registered capability names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the capability registered under name when it implements T
func Get[T any](r *Registry, name string) (T, bool) {
	var zero T

	handle, ok := r.Lookup(name)
	if !ok {
		return zero, false
	}

	typed, ok := handle.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
