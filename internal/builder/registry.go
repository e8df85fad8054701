// SPDX-License-Identifier: MIT

package builder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
)

// NotFoundError reports a dataset name no builder is registered for.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("builder: no dataset registered as %q", e.Name)
}

// Registry maps canonical dataset names to their builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a builder under its dataset name. Registering a second
// builder for the same name is an error, as is a non-canonical name.
func (r *Registry) Register(b Builder) error {
	name := b.Name()
	if !catalog.IsNormalized(name) {
		return fmt.Errorf("builder: dataset name %q is not a canonical identifier", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.builders[name]; dup {
		return fmt.Errorf("builder: dataset %q is already registered", name)
	}
	r.builders[name] = b
	return nil
}

// Get returns the builder for a dataset name.
func (r *Registry) Get(name string) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return b, nil
}

// Names lists the registered dataset names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered builders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.builders)
}
