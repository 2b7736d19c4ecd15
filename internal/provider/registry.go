package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages available model adapters and tracks which one serves
// prompt steps that do not name a provider themselves.
type Registry struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	defaultName string
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter. The first registered adapter becomes the
// default until SetDefault overrides it.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.adapters[name] = adapter
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// Find returns the adapter registered under name.
func (r *Registry) Find(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return adapter, nil
}

// GetDefault returns the adapter prompt steps use when they do not name one.
func (r *Registry) GetDefault() (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultName == "" {
		return nil, fmt.Errorf("no provider registered")
	}
	return r.adapters[r.defaultName], nil
}

// SetDefault selects the adapter GetDefault returns.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; !exists {
		return fmt.Errorf("provider %s not found", name)
	}
	r.defaultName = name
	return nil
}

// Names returns all registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
