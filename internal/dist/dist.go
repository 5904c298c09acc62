// Package dist implements the probability distributions that express
// parameter uncertainty: symmetric and asymmetric Gaussians, one-sided
// (half) Gaussians, flat ranges and correlated multivariate Gaussians.
//
// Every distribution knows its central value(s), can draw random deviates,
// evaluate its log density and report a Gaussian-equivalent covariance for
// linear error propagation. Scalar distributions additionally expose their
// left/right 1-sigma deviations so constraint strings can be serialized
// back out.
package dist

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Distribution is a (possibly multivariate) probability distribution over
// one or more parameter values.
type Distribution interface {
	// Dim is the number of parameters the distribution covers.
	Dim() int
	// Central returns the central values, length Dim.
	Central() []float64
	// Sample draws one joint deviate, length Dim.
	Sample(rnd *rand.Rand) []float64
	// LogPDF evaluates the log density at x, length Dim.
	LogPDF(x []float64) float64
	// Covariance is the Gaussian-equivalent covariance used by linear
	// (delta-method) propagation. For non-Gaussian variants it is the
	// second moment about the central value.
	Covariance() *mat.SymDense
}

// Scalar is a one-dimensional distribution with a well-defined 1-sigma
// interval. Deviations are reported as positive numbers.
type Scalar interface {
	Distribution
	CentralValue() float64
	ErrorLeft() float64
	ErrorRight() float64
}

const logSqrt2Pi = 0.9189385332046727 // log(sqrt(2*pi))

// symCov wraps a single variance in a 1x1 symmetric matrix.
func symCov(variance float64) *mat.SymDense {
	s := mat.NewSymDense(1, nil)
	s.SetSym(0, 0, variance)
	return s
}

// negInf is the log density outside a distribution's support.
var negInf = math.Inf(-1)
