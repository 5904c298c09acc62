// Package constraint implements the constraint store: the association of
// registered parameters with the probability distributions expressing
// their uncertainties, the uncertainty-string grammar, and the YAML corpus
// formats. The store draws joint parameter samples respecting all
// registered correlations and assembles covariance matrices for linear
// propagation.
package constraint

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"

	"flavkit/internal/dist"
	"flavkit/internal/param"
)

// Store misuse errors.
var (
	ErrParameterNotFound   = errors.New("constrained parameter not registered")
	ErrDimensionMismatch   = errors.New("distribution dimension does not match parameter tuple")
	ErrCorrelationConflict = errors.New("parameter already covered by a correlated constraint")
)

// Block is one constraint: a distribution over an ordered parameter tuple.
// Scalar blocks have one name; multivariate blocks carry the correlated
// tuple. Blocks are immutable once added.
type Block struct {
	Names []string
	Dist  dist.Distribution
}

// Store binds a parameter registry to an ordered list of constraint
// blocks. It is read-only during propagation; what-if overrides operate on
// a Snapshot.
type Store struct {
	mu      sync.RWMutex
	reg     *param.Registry
	blocks  []*Block
	byParam map[string][]*Block
}

// NewStore returns an empty constraint store over the given registry.
func NewStore(reg *param.Registry) *Store {
	return &Store{reg: reg, byParam: make(map[string][]*Block)}
}

// Registry returns the parameter registry the store is bound to.
func (s *Store) Registry() *param.Registry { return s.reg }

// AddConstraint attaches a distribution to a tuple of parameters.
// Every parameter must exist in the registry and the distribution
// dimension must equal the tuple length. A parameter may sit in at most
// one multivariate block; further scalar blocks on the same parameter are
// treated as independent systematic contributions.
func (s *Store) AddConstraint(names []string, d dist.Distribution) error {
	if len(names) == 0 {
		return fmt.Errorf("add constraint: empty parameter tuple")
	}
	if d.Dim() != len(names) {
		return fmt.Errorf("add constraint %v: %d-dimensional distribution over %d parameters: %w",
			names, d.Dim(), len(names), ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !s.reg.Has(name) {
			return fmt.Errorf("add constraint: parameter %q: %w", name, ErrParameterNotFound)
		}
		if seen[name] {
			return fmt.Errorf("add constraint: parameter %q repeated in tuple", name)
		}
		seen[name] = true
		if len(names) > 1 {
			for _, b := range s.byParam[name] {
				if len(b.Names) > 1 {
					return fmt.Errorf("add constraint: parameter %q: %w", name, ErrCorrelationConflict)
				}
			}
		}
	}

	b := &Block{Names: append([]string(nil), names...), Dist: d}
	s.blocks = append(s.blocks, b)
	for _, name := range names {
		s.byParam[name] = append(s.byParam[name], b)
	}
	return nil
}

// SetConstraint replaces all constraints on a single parameter with the
// one described by the uncertainty string (the override API). Existing
// blocks touching the parameter are removed first, including any
// correlated block it participates in.
func (s *Store) SetConstraint(name, spec string) error {
	sp, err := ParseSpec(spec)
	if err != nil {
		return fmt.Errorf("set constraint on %q: %w", name, err)
	}
	d, err := sp.Distribution()
	if err != nil {
		return fmt.Errorf("set constraint on %q: %w", name, err)
	}
	if err := s.RemoveConstraint(name); err != nil {
		return err
	}
	return s.AddConstraint([]string{name}, d)
}

// RemoveConstraint drops every block touching the named parameter. A
// multivariate block is removed as a whole: an override invalidates the
// correlated measurement it came from. Removing from an unconstrained
// parameter is a no-op, but the parameter must exist.
func (s *Store) RemoveConstraint(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reg.Has(name) {
		return fmt.Errorf("remove constraint: parameter %q: %w", name, ErrParameterNotFound)
	}
	doomed := make(map[*Block]bool, len(s.byParam[name]))
	for _, b := range s.byParam[name] {
		doomed[b] = true
	}
	if len(doomed) == 0 {
		return nil
	}
	kept := s.blocks[:0]
	for _, b := range s.blocks {
		if !doomed[b] {
			kept = append(kept, b)
		}
	}
	s.blocks = kept
	for p, bs := range s.byParam {
		out := bs[:0]
		for _, b := range bs {
			if !doomed[b] {
				out = append(out, b)
			}
		}
		if len(out) == 0 {
			delete(s.byParam, p)
		} else {
			s.byParam[p] = out
		}
	}
	return nil
}

// ConstraintsFor returns the blocks touching a parameter in insertion
// order.
func (s *Store) ConstraintsFor(name string) []*Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Block(nil), s.byParam[name]...)
}

// Blocks returns all constraint blocks in insertion order.
func (s *Store) Blocks() []*Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Block(nil), s.blocks...)
}

// CentralValues returns the nominal value of every registered parameter:
// the registry default, overridden by the central value of the first
// constraint block covering the parameter.
func (s *Store) CentralValues() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vals := s.reg.Defaults()
	assigned := make(map[string]bool)
	for _, b := range s.blocks {
		central := b.Dist.Central()
		for i, name := range b.Names {
			if !assigned[name] {
				vals[name] = central[i]
				assigned[name] = true
			}
		}
	}
	return vals
}

// Sample draws n joint parameter assignments. The first block covering a
// parameter sets its value; every further block on the same parameter
// contributes its deviation from that block's own central value, so
// independent Gaussian systematics add in quadrature. Parameters covered
// by no constraint stay at their registry default with zero spread.
func (s *Store) Sample(rnd *rand.Rand, n int) []map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]map[string]float64, n)
	defaults := s.reg.Defaults()
	for i := range out {
		vals := make(map[string]float64, len(defaults))
		for k, v := range defaults {
			vals[k] = v
		}
		out[i] = vals
	}

	// Which block is primary for each parameter (first in insertion
	// order).
	primary := make(map[string]*Block)
	for _, b := range s.blocks {
		for _, name := range b.Names {
			if _, ok := primary[name]; !ok {
				primary[name] = b
			}
		}
	}

	for _, b := range s.blocks {
		central := b.Dist.Central()
		if mv, ok := b.Dist.(*dist.Multivariate); ok && n > 1 {
			draws := mv.SampleN(rnd, n)
			for i := 0; i < n; i++ {
				applyDraw(out[i], b, primary, draws.RawRowView(i), central)
			}
			continue
		}
		for i := 0; i < n; i++ {
			applyDraw(out[i], b, primary, b.Dist.Sample(rnd), central)
		}
	}
	return out
}

// applyDraw writes one block's draw into a sample assignment.
func applyDraw(vals map[string]float64, b *Block, primary map[string]*Block, draw, central []float64) {
	for j, name := range b.Names {
		if primary[name] == b {
			vals[name] = draw[j]
		} else {
			vals[name] += draw[j] - central[j]
		}
	}
}

// Covariance assembles the Gaussian-equivalent joint covariance of the
// given parameters for linear propagation. Contributions from independent
// blocks on the same parameter sum, which is quadrature addition of
// widths. Unconstrained parameters get zero rows and columns.
func (s *Store) Covariance(names []string) *mat.SymDense {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := make(map[string]int, len(names))
	for i, name := range names {
		idx[name] = i
	}
	cov := mat.NewSymDense(len(names), nil)
	for _, b := range s.blocks {
		bc := b.Dist.Covariance()
		for i, ni := range b.Names {
			pi, ok := idx[ni]
			if !ok {
				continue
			}
			for j, nj := range b.Names {
				pj, ok := idx[nj]
				if !ok || pj < pi {
					continue
				}
				cov.SetSym(pi, pj, cov.At(pi, pj)+bc.At(i, j))
			}
		}
	}
	return cov
}

// ConstrainedNames returns, in insertion order, every parameter covered by
// at least one block.
func (s *Store) ConstrainedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	seen := make(map[string]bool)
	for _, b := range s.blocks {
		for _, name := range b.Names {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Snapshot returns an isolated deep copy of the store together with a
// snapshot of its registry. Concurrent propagation runs with different
// assumptions each take their own snapshot; the shared defaults are never
// mutated. Distributions are immutable and therefore shared.
func (s *Store) Snapshot() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := NewStore(s.reg.Snapshot())
	for _, b := range s.blocks {
		nb := &Block{Names: append([]string(nil), b.Names...), Dist: b.Dist}
		cp.blocks = append(cp.blocks, nb)
		for _, name := range nb.Names {
			cp.byParam[name] = append(cp.byParam[name], nb)
		}
	}
	return cp
}
