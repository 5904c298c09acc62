// Package likelihood combines theory predictions with experimental
// measurements. A measurement carries the same distribution shapes as a
// parameter constraint; the combination adds theoretical and experimental
// covariance matrices (never bare variances) so correlated observables are
// counted exactly once.
package likelihood

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"flavkit/internal/dist"
	"flavkit/internal/logging"
	"flavkit/internal/propagate"
)

// ErrDimensionMismatch flags a measurement vector that does not line up
// with the prediction's targets.
var ErrDimensionMismatch = errors.New("measurement dimension does not match prediction")

// Measurement is an experimental result for one or more observables, in
// the same order as the prediction targets it will be compared against.
type Measurement struct {
	// Name identifies the experiment/publication for error reporting.
	Name string
	// Observables names the measured targets in order.
	Observables []string
	// Dist is the experimental likelihood shape: scalar for a single
	// observable, multivariate for a correlated set.
	Dist dist.Distribution
}

// NewMeasurement validates that the distribution dimensionality matches
// the observable list.
func NewMeasurement(name string, observables []string, d dist.Distribution) (*Measurement, error) {
	if len(observables) == 0 {
		return nil, fmt.Errorf("measurement %q: no observables", name)
	}
	if d.Dim() != len(observables) {
		return nil, fmt.Errorf("measurement %q: %d-dimensional distribution over %d observables: %w",
			name, d.Dim(), len(observables), ErrDimensionMismatch)
	}
	return &Measurement{Name: name, Observables: observables, Dist: d}, nil
}

// Chi2 returns the chi-square of the prediction against the measurement:
//
//	(x_th − x_exp)ᵀ (Σ_th + Σ_exp)⁻¹ (x_th − x_exp)
//
// Σ_th comes from the prediction (empirical covariance of the Monte Carlo
// ensemble, or the delta-method covariance), Σ_exp from the measurement.
func Chi2(pred *propagate.Prediction, meas *Measurement) (float64, error) {
	n := len(pred.Targets)
	if meas.Dist.Dim() != n {
		return 0, fmt.Errorf("measurement %q covers %d observables, prediction has %d targets: %w",
			meas.Name, meas.Dist.Dim(), n, ErrDimensionMismatch)
	}
	if pred.Partial {
		return 0, fmt.Errorf("measurement %q: refusing to fit against a partial prediction (run %s)", meas.Name, pred.RunID)
	}

	diff := mat.NewVecDense(n, nil)
	expCentral := meas.Dist.Central()
	for i := 0; i < n; i++ {
		diff.SetVec(i, pred.Mean[i]-expCentral[i])
	}

	combined := mat.NewSymDense(n, nil)
	expCov := meas.Dist.Covariance()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			th := 0.0
			if pred.Covariance != nil {
				th = pred.Covariance.At(i, j)
			}
			combined.SetSym(i, j, th+expCov.At(i, j))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(combined) {
		return 0, fmt.Errorf("measurement %q: combined covariance is not positive definite", meas.Name)
	}
	sol := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(sol, diff); err != nil {
		return 0, fmt.Errorf("measurement %q: solving combined covariance: %w", meas.Name, err)
	}
	chi2 := mat.Dot(diff, sol)
	logging.Get(logging.CategoryLikelihood).Debug("chi2 vs %q: %v over %d observables", meas.Name, chi2, n)
	return chi2, nil
}

// LogLikelihood returns the Gaussian log-likelihood of the prediction
// against the measurement, including the normalization term.
func LogLikelihood(pred *propagate.Prediction, meas *Measurement) (float64, error) {
	n := len(pred.Targets)
	chi2, err := Chi2(pred, meas)
	if err != nil {
		return 0, err
	}

	combined := mat.NewSymDense(n, nil)
	expCov := meas.Dist.Covariance()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			th := 0.0
			if pred.Covariance != nil {
				th = pred.Covariance.At(i, j)
			}
			combined.SetSym(i, j, th+expCov.At(i, j))
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(combined) {
		return 0, fmt.Errorf("measurement %q: combined covariance is not positive definite", meas.Name)
	}
	logDet := chol.LogDet()
	return -0.5 * (chi2 + logDet + float64(n)*math.Log(2*math.Pi)), nil
}
