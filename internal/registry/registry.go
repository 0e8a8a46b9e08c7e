// Package registry holds optional engine capabilities keyed by name.
// Components register an implementation at startup; consumers look it up
// later without the core contract having to know the concrete type.
package registry

import "sync"

// Registry is a concurrency-safe capability map. The zero value is not
// usable; call New.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]any
}

func New() *Registry {
	return &Registry{caps: make(map[string]any)}
}

// Register stores the implementation under the capability name, replacing
// any previous registration.
func (r *Registry) Register(name string, impl any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[name] = impl
}

// Unregister removes the capability. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caps, name)
}

// Lookup returns the registered implementation, or false when nothing is
// registered under the name.
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.caps[name]
	return impl, ok
}

// Names returns the registered capability names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	return names
}

// Get retrieves a capability by name and asserts its type. It returns
// false when the name is absent or the registered value has a different
// type.
func Get[T any](r *Registry, name string) (T, bool) {
	impl, ok := r.Lookup(name)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := impl.(T)
	return typed, ok
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }
