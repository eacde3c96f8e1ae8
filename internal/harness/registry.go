package harness

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps unit names to statically linked unit logic
type Registry struct {
	units map[string]UnitFunc
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]UnitFunc)}
}

// Register adds logic for the named unit. Registering a name twice is an error.
func (r *Registry) Register(name string, fn UnitFunc) error {
	if name == "" {
		return fmt.Errorf("unit name is required")
	}
	if fn == nil {
		return fmt.Errorf("unit %q: logic is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.units[name]; exists {
		return fmt.Errorf("unit %q is already registered", name)
	}
	r.units[name] = fn
	return nil
}

// Lookup returns the logic registered for name
func (r *Registry) Lookup(name string) (UnitFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.units[name]
	return fn, ok
}

// Names returns the registered unit names in lexical order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry populated by Register
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds unit logic to the default registry. It is meant to be called
// from init functions and panics on duplicates.
func Register(name string, fn UnitFunc) {
	if err := defaultRegistry.Register(name, fn); err != nil {
		panic(err)
	}
}
