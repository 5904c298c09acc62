package dist

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Multivariate is a correlated Gaussian over a tuple of parameters.
// It is the only distribution with Dim > 1; physical correlations (bag
// parameters, lattice form-factor coefficients) must be expressed through
// it rather than through independent scalars.
type Multivariate struct {
	mu  []float64
	cov *mat.SymDense
	nd  *distmv.Normal
}

// NewMultivariate builds a correlated Gaussian from central values and a
// covariance matrix. The covariance must be positive definite.
func NewMultivariate(central []float64, cov *mat.SymDense) (*Multivariate, error) {
	n := len(central)
	if cov.SymmetricDim() != n {
		return nil, fmt.Errorf("multivariate: %d central values vs %dx%d covariance", n, cov.SymmetricDim(), cov.SymmetricDim())
	}
	nd, ok := distmv.NewNormal(central, cov, nil)
	if !ok {
		return nil, fmt.Errorf("multivariate: covariance matrix is not positive definite")
	}
	mu := make([]float64, n)
	copy(mu, central)
	return &Multivariate{mu: mu, cov: cov, nd: nd}, nil
}

// NewMultivariateFromCorrelation builds the covariance from per-parameter
// 1-sigma errors and a correlation matrix. A correlation matrix that is
// numerically just short of positive definite gets one repair attempt:
// all off-diagonal correlations are scaled by 0.99. If that still fails,
// the constraint is rejected.
func NewMultivariateFromCorrelation(central, errors []float64, corr *mat.SymDense) (*Multivariate, error) {
	n := len(central)
	if len(errors) != n || corr.SymmetricDim() != n {
		return nil, fmt.Errorf("multivariate: inconsistent dimensions (%d central, %d errors, %dx%d correlation)",
			n, len(errors), corr.SymmetricDim(), corr.SymmetricDim())
	}
	cov := covFromCorrelation(errors, corr, 1.0)
	mv, err := NewMultivariate(central, cov)
	if err == nil {
		return mv, nil
	}
	cov = covFromCorrelation(errors, corr, 0.99)
	mv, repairErr := NewMultivariate(central, cov)
	if repairErr != nil {
		return nil, fmt.Errorf("multivariate: covariance not positive definite even after damping correlations: %w", repairErr)
	}
	return mv, nil
}

// covFromCorrelation assembles sigma_i * sigma_j * rho_ij, scaling the
// off-diagonal correlations by damp.
func covFromCorrelation(errors []float64, corr *mat.SymDense, damp float64) *mat.SymDense {
	n := len(errors)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			rho := corr.At(i, j)
			if i != j {
				rho *= damp
			}
			cov.SetSym(i, j, errors[i]*errors[j]*rho)
		}
	}
	return cov
}

func (m *Multivariate) Dim() int { return len(m.mu) }

func (m *Multivariate) Central() []float64 {
	out := make([]float64, len(m.mu))
	copy(out, m.mu)
	return out
}

func (m *Multivariate) Sample(rnd *rand.Rand) []float64 {
	if rnd == nil {
		return m.nd.Rand(nil)
	}
	// distmv keeps its source internal. Per-draw rebuilds pay the
	// Cholesky again; bulk callers should use SampleN.
	nd, _ := distmv.NewNormal(m.mu, m.cov, rnd)
	return nd.Rand(nil)
}

// SampleN draws n joint deviates, one per row of the returned matrix.
// Building the sampler once per batch keeps the Cholesky factorization
// out of the per-draw loop.
func (m *Multivariate) SampleN(rnd *rand.Rand, n int) *mat.Dense {
	nd, _ := distmv.NewNormal(m.mu, m.cov, rnd)
	out := mat.NewDense(n, len(m.mu), nil)
	for i := 0; i < n; i++ {
		nd.Rand(out.RawRowView(i))
	}
	return out
}

func (m *Multivariate) LogPDF(x []float64) float64 { return m.nd.LogProb(x) }

func (m *Multivariate) Covariance() *mat.SymDense {
	n := m.cov.SymmetricDim()
	cp := mat.NewSymDense(n, nil)
	cp.CopySym(m.cov)
	return cp
}

// Sigma returns the 1-sigma width of component i.
func (m *Multivariate) Sigma(i int) float64 {
	v := m.cov.At(i, i)
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
