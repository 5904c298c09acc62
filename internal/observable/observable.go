// Package observable implements the registry of named observable
// functions. An observable is a pure function of the current parameter
// values and a fixed number of kinematic arguments (e.g. a dilepton
// invariant mass squared). Purity is part of the contract: Monte Carlo
// propagation evaluates each sample independently and expects identical
// inputs to yield identical outputs.
package observable

import (
	"errors"
	"fmt"
	"sync"
)

// Evaluator misuse errors.
var (
	ErrUndefinedObservable = errors.New("observable not registered")
	ErrDuplicateObservable = errors.New("observable already registered")
	ErrArity               = errors.New("kinematic argument count mismatch")
)

// Func computes an observable from parameter values and kinematic
// arguments. It must be pure: no hidden state, no randomness, no
// mutation of par. Domain failures (unphysical kinematic points) are
// reported through the error return.
type Func func(par map[string]float64, kin ...float64) (float64, error)

// Observable couples a name with its function and kinematic arity.
type Observable struct {
	Name        string
	Description string
	Arity       int
	fn          Func
}

// Registry maps observable names to their definitions. Registration
// happens at startup; evaluation is concurrent and lock-free after a
// read-locked lookup.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Observable
	order  []string
}

// NewRegistry returns an empty observable registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Observable)}
}

// Register adds a named observable with the given kinematic arity.
func (r *Registry) Register(name string, arity int, fn Func) (*Observable, error) {
	if fn == nil {
		return nil, fmt.Errorf("register %q: nil function", name)
	}
	if arity < 0 {
		return nil, fmt.Errorf("register %q: negative arity %d", name, arity)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("register %q: %w", name, ErrDuplicateObservable)
	}
	o := &Observable{Name: name, Arity: arity, fn: fn}
	r.byName[name] = o
	r.order = append(r.order, name)
	return o, nil
}

// MustRegister is Register for startup wiring.
func (r *Registry) MustRegister(name string, arity int, fn Func) *Observable {
	o, err := r.Register(name, arity, fn)
	if err != nil {
		panic(err)
	}
	return o
}

// Get returns the named observable.
func (r *Registry) Get(name string) (*Observable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("observable %q: %w", name, ErrUndefinedObservable)
	}
	return o, nil
}

// Names returns the registered observable names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Evaluate computes the named observable at the given parameter values
// and kinematic point.
func (r *Registry) Evaluate(name string, par map[string]float64, kin ...float64) (float64, error) {
	o, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	return o.Evaluate(par, kin...)
}

// Evaluate applies the observable function, enforcing the kinematic
// arity declared at registration.
func (o *Observable) Evaluate(par map[string]float64, kin ...float64) (float64, error) {
	if len(kin) != o.Arity {
		return 0, fmt.Errorf("observable %q: got %d kinematic arguments, want %d: %w",
			o.Name, len(kin), o.Arity, ErrArity)
	}
	v, err := o.fn(par, kin...)
	if err != nil {
		return 0, fmt.Errorf("observable %q: %w", o.Name, err)
	}
	return v, nil
}
