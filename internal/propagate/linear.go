package propagate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"flavkit/internal/constraint"
	"flavkit/internal/logging"
	"flavkit/internal/observable"
)

// gradientStep scales a parameter's 1-sigma width to the finite-difference
// step. Small enough to stay in the linear regime, large enough to beat
// float64 cancellation on typical observables.
const gradientStep = 1e-4

// Linear propagates uncertainties by the first-order delta method: the
// gradient of every target with respect to each constrained parameter at
// the central values, combined with the store covariance as J Σ Jᵀ.
// No RNG is involved; the result is deterministic. Non-Gaussian tails and
// asymmetries are folded to their Gaussian-equivalent widths.
func Linear(store *constraint.Store, reg *observable.Registry, targets []Target) (*Prediction, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("linear propagation: no targets")
	}
	obs := make([]*observable.Observable, len(targets))
	for i, tgt := range targets {
		o, err := reg.Get(tgt.Observable)
		if err != nil {
			return nil, fmt.Errorf("linear propagation: %w", err)
		}
		obs[i] = o
	}

	timer := logging.StartTimer(logging.CategoryPropagate, fmt.Sprintf("Linear targets=%d", len(targets)))
	defer timer.Stop()

	central := store.CentralValues()
	names := store.ConstrainedNames()
	sigma := store.Covariance(names)

	pred := newPrediction(targets)
	for i, o := range obs {
		v, err := o.Evaluate(central, targets[i].Kin...)
		if err != nil {
			return nil, fmt.Errorf("linear propagation at central values: %w", err)
		}
		pred.Mean[i] = v
	}

	// Jacobian: targets × constrained parameters. The step for parameter
	// k is its own width scaled by gradientStep; parameters with zero
	// width contribute nothing and are skipped.
	jac := mat.NewDense(len(targets), len(names), nil)
	work := make(map[string]float64, len(central))
	for k, v := range central {
		work[k] = v
	}
	for k, name := range names {
		width := math.Sqrt(sigma.At(k, k))
		if width == 0 {
			continue
		}
		h := width * gradientStep
		base := central[name]
		for i, o := range obs {
			work[name] = base + h
			up, err := o.Evaluate(work, targets[i].Kin...)
			if err != nil {
				work[name] = base
				return nil, fmt.Errorf("linear propagation: gradient of %s wrt %q: %w", targets[i], name, err)
			}
			work[name] = base - h
			down, err := o.Evaluate(work, targets[i].Kin...)
			if err != nil {
				work[name] = base
				return nil, fmt.Errorf("linear propagation: gradient of %s wrt %q: %w", targets[i], name, err)
			}
			jac.Set(i, k, (up-down)/(2*h))
		}
		work[name] = base
	}

	// J Σ Jᵀ
	var js mat.Dense
	js.Mul(jac, sigma)
	var cov mat.Dense
	cov.Mul(&js, jac.T())

	m := len(targets)
	sym := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			// enforce exact symmetry against rounding
			sym.SetSym(i, j, (cov.At(i, j)+cov.At(j, i))/2)
		}
	}
	pred.Covariance = sym
	for i := 0; i < m; i++ {
		pred.StdDev[i] = math.Sqrt(math.Max(sym.At(i, i), 0))
	}
	pred.Evaluated = 1
	return pred, nil
}
