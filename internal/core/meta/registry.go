package meta

import (
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// Registry
// =============================================================================

// Registry maps service names to their Validator.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[string]Validator),
	}
}

// Builtin returns a registry holding the modules compiled into the binary.
func Builtin() *Registry {
	r := NewRegistry()
	for _, v := range []Validator{NewLettersDemo(), NewWordDemo(), NewDemo(), NewWaiter()} {
		// Names are distinct constants.
		_ = r.Register(v)
	}
	return r
}

// Register adds v under v.Name().
func (r *Registry) Register(v Validator) error {
	name := v.Name()
	if name == "" {
		return ErrEmptyServiceName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.validators[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	r.validators[name] = v
	return nil
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.validators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return v, nil
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.validators))
	for name := range r.validators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered validators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.validators)
}
