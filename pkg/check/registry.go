package check

import (
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a Check from a raw configuration map.
// Each stage type registers a Factory with the Registry.
type Factory func(config map[string]any) (Check, error)

// Registry holds registered stage types and their factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a stage factory under the given name.
// Returns an error if the name is empty or already registered.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("stage type name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("stage type %q: factory must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("stage type %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a Check of the given type using the provided config.
// The factory's error is wrapped with the stage name.
func (r *Registry) Create(name string, config map[string]any) (Check, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown stage type %q (registered: %v)", name, r.Types())
	}
	chk, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("create %s stage: %w", name, err)
	}
	return chk, nil
}

// Has reports whether a stage type is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Types returns the sorted names of all registered stage types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
