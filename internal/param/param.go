// Package param implements the registry of named physical input parameters.
// A Parameter couples a globally unique name with a nominal (default) value
// and display metadata. The registry is the single source of truth for
// which parameters exist; constraints and observables refer to parameters
// by name only.
package param

import (
	"errors"
	"fmt"
	"sync"
)

// Registry misuse errors.
var (
	ErrDuplicateParameter = errors.New("parameter already registered")
	ErrUnknownParameter   = errors.New("unknown parameter")
)

// Parameter is a named physical input quantity.
// Name and metadata are immutable after registration; only the nominal
// default value may be updated through Registry.SetDefault.
type Parameter struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Tex         string  `yaml:"tex,omitempty"`
	Default     float64 `yaml:"default"`
}

// Registry maps parameter names to their definitions.
// It is safe for concurrent readers; registration normally happens once at
// startup. A what-if scenario gets its own registry via Snapshot.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Parameter
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Parameter)}
}

// Register adds a new parameter with the given default value.
func (r *Registry) Register(name string, def float64) (*Parameter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("register %q: %w", name, ErrDuplicateParameter)
	}
	p := &Parameter{Name: name, Default: def}
	r.byName[name] = p
	r.order = append(r.order, name)
	return p, nil
}

// MustRegister is Register for startup wiring where a duplicate is a
// programming error.
func (r *Registry) MustRegister(name string, def float64) *Parameter {
	p, err := r.Register(name, def)
	if err != nil {
		panic(err)
	}
	return p
}

// Get returns the parameter with the given name.
func (r *Registry) Get(name string) (*Parameter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", name, ErrUnknownParameter)
	}
	return p, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// SetDefault overwrites the nominal value of an existing parameter.
// It never touches constraints; distributions live in the constraint store.
func (r *Registry) SetDefault(name string, def float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("set default %q: %w", name, ErrUnknownParameter)
	}
	p.Default = def
	return nil
}

// SetMetadata fills in the display metadata of an existing parameter.
// Empty fields are left untouched so metadata files can be partial.
func (r *Registry) SetMetadata(name, description, tex string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("set metadata %q: %w", name, ErrUnknownParameter)
	}
	if description != "" {
		p.Description = description
	}
	if tex != "" {
		p.Tex = tex
	}
	return nil
}

// Names returns all parameter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Defaults returns a name→default map of every registered parameter.
// The map is a fresh copy; callers may mutate it freely (it is the seed
// for per-sample parameter assignments).
func (r *Registry) Defaults() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.byName))
	for name, p := range r.byName {
		out[name] = p.Default
	}
	return out
}

// Snapshot returns a deep copy of the registry. Scenario runs mutate the
// copy and leave the shared default registry untouched.
func (r *Registry) Snapshot() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := NewRegistry()
	for _, name := range r.order {
		p := *r.byName[name]
		cp.byName[name] = &p
		cp.order = append(cp.order, name)
	}
	return cp
}
