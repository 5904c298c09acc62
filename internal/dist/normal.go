package dist

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Normal is a symmetric Gaussian with central value Mu and width Sigma.
type Normal struct {
	Mu    float64
	Sigma float64
}

// NewNormal returns a symmetric Gaussian constraint distribution.
func NewNormal(mu, sigma float64) (*Normal, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("normal: sigma must be positive, got %v", sigma)
	}
	return &Normal{Mu: mu, Sigma: sigma}, nil
}

func (n *Normal) Dim() int           { return 1 }
func (n *Normal) Central() []float64 { return []float64{n.Mu} }

func (n *Normal) Sample(rnd *rand.Rand) []float64 {
	d := distuv.Normal{Mu: n.Mu, Sigma: n.Sigma, Src: rnd}
	return []float64{d.Rand()}
}

func (n *Normal) LogPDF(x []float64) float64 {
	d := distuv.Normal{Mu: n.Mu, Sigma: n.Sigma}
	return d.LogProb(x[0])
}

func (n *Normal) Covariance() *mat.SymDense { return symCov(n.Sigma * n.Sigma) }

func (n *Normal) CentralValue() float64 { return n.Mu }
func (n *Normal) ErrorLeft() float64    { return n.Sigma }
func (n *Normal) ErrorRight() float64   { return n.Sigma }

// Delta is a zero-width distribution pinning a parameter to a fixed value.
// Parameters not covered by any constraint behave like a Delta at their
// registry default.
type Delta struct {
	Value float64
}

func (d *Delta) Dim() int           { return 1 }
func (d *Delta) Central() []float64 { return []float64{d.Value} }

func (d *Delta) Sample(rnd *rand.Rand) []float64 { return []float64{d.Value} }

func (d *Delta) LogPDF(x []float64) float64 {
	if x[0] == d.Value {
		return 0
	}
	return negInf
}

func (d *Delta) Covariance() *mat.SymDense { return symCov(0) }

func (d *Delta) CentralValue() float64 { return d.Value }
func (d *Delta) ErrorLeft() float64    { return 0 }
func (d *Delta) ErrorRight() float64   { return 0 }

// AsymmetricNormal is a two-piece Gaussian: width SigmaLeft below the
// central value, SigmaRight above it. The density is continuous at Mu and
// normalized over the whole line.
type AsymmetricNormal struct {
	Mu         float64
	SigmaLeft  float64
	SigmaRight float64
}

// NewAsymmetricNormal returns a two-piece Gaussian. Both deviations are
// positive magnitudes.
func NewAsymmetricNormal(mu, sigmaRight, sigmaLeft float64) (*AsymmetricNormal, error) {
	if sigmaRight <= 0 || sigmaLeft <= 0 {
		return nil, fmt.Errorf("asymmetric normal: deviations must be positive, got +%v -%v", sigmaRight, sigmaLeft)
	}
	return &AsymmetricNormal{Mu: mu, SigmaLeft: sigmaLeft, SigmaRight: sigmaRight}, nil
}

func (a *AsymmetricNormal) Dim() int           { return 1 }
func (a *AsymmetricNormal) Central() []float64 { return []float64{a.Mu} }

// Sample picks the lower or upper half with probability proportional to
// the respective width, then draws a half-Gaussian deviate on that side.
// This is the continuous two-piece density, not two disjoint halves.
func (a *AsymmetricNormal) Sample(rnd *rand.Rand) []float64 {
	pLeft := a.SigmaLeft / (a.SigmaLeft + a.SigmaRight)
	if rnd.Float64() < pLeft {
		return []float64{a.Mu - math.Abs(rnd.NormFloat64())*a.SigmaLeft}
	}
	return []float64{a.Mu + math.Abs(rnd.NormFloat64())*a.SigmaRight}
}

func (a *AsymmetricNormal) LogPDF(x []float64) float64 {
	// Common normalization 2/(sqrt(2*pi)*(sigmaL+sigmaR)) keeps the
	// density continuous at the central value.
	norm := -logSqrt2Pi - math.Log(a.SigmaLeft+a.SigmaRight) + math.Log(2)
	d := x[0] - a.Mu
	if d < 0 {
		return norm - d*d/(2*a.SigmaLeft*a.SigmaLeft)
	}
	return norm - d*d/(2*a.SigmaRight*a.SigmaRight)
}

func (a *AsymmetricNormal) Covariance() *mat.SymDense {
	// Gaussian-equivalent width for linear propagation: the arithmetic
	// mean of the two deviations.
	s := (a.SigmaLeft + a.SigmaRight) / 2
	return symCov(s * s)
}

func (a *AsymmetricNormal) CentralValue() float64 { return a.Mu }
func (a *AsymmetricNormal) ErrorLeft() float64    { return a.SigmaLeft }
func (a *AsymmetricNormal) ErrorRight() float64   { return a.SigmaRight }

// HalfNormal is a one-sided Gaussian bounded at its central value. The
// sign of Sigma selects the side: positive allows only upward deviations,
// negative only downward.
type HalfNormal struct {
	Mu    float64
	Sigma float64
}

// NewHalfNormal returns a one-sided Gaussian; sigma must be nonzero.
func NewHalfNormal(mu, sigma float64) (*HalfNormal, error) {
	if sigma == 0 {
		return nil, fmt.Errorf("half normal: sigma must be nonzero")
	}
	return &HalfNormal{Mu: mu, Sigma: sigma}, nil
}

func (h *HalfNormal) Dim() int           { return 1 }
func (h *HalfNormal) Central() []float64 { return []float64{h.Mu} }

func (h *HalfNormal) Sample(rnd *rand.Rand) []float64 {
	dev := math.Abs(rnd.NormFloat64()) * math.Abs(h.Sigma)
	if h.Sigma < 0 {
		return []float64{h.Mu - dev}
	}
	return []float64{h.Mu + dev}
}

func (h *HalfNormal) LogPDF(x []float64) float64 {
	d := x[0] - h.Mu
	if (h.Sigma > 0 && d < 0) || (h.Sigma < 0 && d > 0) {
		return negInf
	}
	s := math.Abs(h.Sigma)
	return math.Log(2) - logSqrt2Pi - math.Log(s) - d*d/(2*s*s)
}

func (h *HalfNormal) Covariance() *mat.SymDense { return symCov(h.Sigma * h.Sigma) }

func (h *HalfNormal) CentralValue() float64 { return h.Mu }

func (h *HalfNormal) ErrorLeft() float64 {
	if h.Sigma < 0 {
		return -h.Sigma
	}
	return 0
}

func (h *HalfNormal) ErrorRight() float64 {
	if h.Sigma > 0 {
		return h.Sigma
	}
	return 0
}
