// Package registry manages the capabilities available to the engine.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pergolab/pergola/pkg/domain"
)

// Registry binds capability names to implementations. Bindings are
// established by the host before the graph is built; graph validation fails
// on any node referencing an unregistered name.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]domain.CapabilityFunc
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		caps: make(map[string]domain.CapabilityFunc),
	}
}

// Register adds a capability to the registry.
// If a capability with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn domain.CapabilityFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[name] = fn
}

// Has reports whether a capability is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.caps[name]
	return ok
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke looks up a capability by name and executes it.
func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.caps[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCapability, name)
	}

	return fn(ctx, input)
}
