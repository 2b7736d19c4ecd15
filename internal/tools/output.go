package tools

import "sync"

// OutputContext is the write-only handle a tool publishes its results
// through. Keys written more than once keep the last value. The zero value
// is not usable; construct with NewOutputContext.
type OutputContext struct {
	mu     sync.Mutex
	values map[string]interface{}
}

// NewOutputContext returns an empty output context bound to one invocation.
func NewOutputContext() *OutputContext {
	return &OutputContext{values: make(map[string]interface{})}
}

// Set records a single output value.
func (oc *OutputContext) Set(key string, value interface{}) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.values[key] = value
}

// SetAll records every entry of the given map.
func (oc *OutputContext) SetAll(values map[string]interface{}) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	for key, value := range values {
		oc.values[key] = value
	}
}

// Values returns a copy of everything written so far.
func (oc *OutputContext) Values() map[string]interface{} {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	out := make(map[string]interface{}, len(oc.values))
	for key, value := range oc.values {
		out[key] = value
	}
	return out
}

// Len reports how many distinct keys have been written.
func (oc *OutputContext) Len() int {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return len(oc.values)
}
