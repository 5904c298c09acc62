package constraint

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"flavkit/internal/dist"
	"flavkit/internal/param"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	reg := param.NewRegistry()
	reg.MustRegister("alpha_s", 0.1185)
	reg.MustRegister("m_b", 4.18)
	reg.MustRegister("Vus", 0.2243)
	reg.MustRegister("f_B0", 0.1905)
	return NewStore(reg)
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(42, 1))
}

func TestAddConstraintValidation(t *testing.T) {
	s := newTestStore(t)

	n, _ := dist.NewNormal(0.1185, 0.0012)
	if err := s.AddConstraint([]string{"alpha_s"}, n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.AddConstraint([]string{"not_there"}, n); !errors.Is(err, ErrParameterNotFound) {
		t.Fatalf("expected ErrParameterNotFound, got %v", err)
	}

	if err := s.AddConstraint([]string{"m_b", "Vus"}, n); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMultivariateConflict(t *testing.T) {
	s := newTestStore(t)
	corr := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	mv, err := dist.NewMultivariateFromCorrelation([]float64{4.18, 0.2243}, []float64{0.03, 0.0005}, corr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddConstraint([]string{"m_b", "Vus"}, mv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A second correlated block touching m_b double-counts correlations.
	mv2, _ := dist.NewMultivariateFromCorrelation([]float64{4.18, 0.1905}, []float64{0.03, 0.005}, corr)
	if err := s.AddConstraint([]string{"m_b", "f_B0"}, mv2); !errors.Is(err, ErrCorrelationConflict) {
		t.Fatalf("expected ErrCorrelationConflict, got %v", err)
	}
	// An additional independent scalar systematic on m_b is allowed.
	extra, _ := dist.NewNormal(4.18, 0.01)
	if err := s.AddConstraint([]string{"m_b"}, extra); err != nil {
		t.Fatalf("unexpected error for disjoint systematic: %v", err)
	}
	if got := len(s.ConstraintsFor("m_b")); got != 2 {
		t.Fatalf("expected 2 blocks on m_b, got %d", got)
	}
}

func TestUnconstrainedParametersKeepDefaults(t *testing.T) {
	s := newTestStore(t)
	n, _ := dist.NewNormal(0.1185, 0.0012)
	if err := s.AddConstraint([]string{"alpha_s"}, n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	samples := s.Sample(testRand(), 50)
	for _, vals := range samples {
		if vals["m_b"] != 4.18 {
			t.Fatalf("unconstrained parameter moved: %v", vals["m_b"])
		}
	}
}

func TestSampleMomentsAndQuadrature(t *testing.T) {
	s := newTestStore(t)
	// Two independent systematics on alpha_s: 0.0012 and 0.0005 add in
	// quadrature.
	n1, _ := dist.NewNormal(0.1185, 0.0012)
	n2, _ := dist.NewNormal(0.1185, 0.0005)
	if err := s.AddConstraint([]string{"alpha_s"}, n1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddConstraint([]string{"alpha_s"}, n2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const N = 100000
	samples := s.Sample(testRand(), N)
	xs := make([]float64, N)
	for i, vals := range samples {
		xs[i] = vals["alpha_s"]
	}
	wantSD := math.Hypot(0.0012, 0.0005)
	if mean := stat.Mean(xs, nil); math.Abs(mean-0.1185) > 5*wantSD/math.Sqrt(N) {
		t.Fatalf("mean off: %v", mean)
	}
	if sd := stat.StdDev(xs, nil); math.Abs(sd-wantSD)/wantSD > 0.03 {
		t.Fatalf("stddev off: got %v want %v", sd, wantSD)
	}

	cov := s.Covariance([]string{"alpha_s"})
	if got := cov.At(0, 0); math.Abs(got-wantSD*wantSD) > 1e-12 {
		t.Fatalf("covariance off: %v", got)
	}
}

func TestSampleCorrelationRecovered(t *testing.T) {
	s := newTestStore(t)
	corr := mat.NewSymDense(2, []float64{1, -0.45, -0.45, 1})
	mv, err := dist.NewMultivariateFromCorrelation([]float64{4.18, 0.2243}, []float64{0.03, 0.0005}, corr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddConstraint([]string{"m_b", "Vus"}, mv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	const N = 100000
	samples := s.Sample(testRand(), N)
	as := make([]float64, N)
	bs := make([]float64, N)
	for i, vals := range samples {
		as[i] = vals["m_b"]
		bs[i] = vals["Vus"]
	}
	if rho := stat.Correlation(as, bs, nil); math.Abs(rho+0.45) > 0.01 {
		t.Fatalf("empirical correlation off: %v", rho)
	}
}

func TestSetConstraintOverride(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetConstraint("alpha_s", "0.1185 ± 0.0012"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetConstraint("alpha_s", "0.1179 ± 0.0010"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocks := s.ConstraintsFor("alpha_s")
	if len(blocks) != 1 {
		t.Fatalf("override must replace, got %d blocks", len(blocks))
	}
	if c := blocks[0].Dist.Central()[0]; c != 0.1179 {
		t.Fatalf("central after override: %v", c)
	}
	if err := s.SetConstraint("missing", "1 ± 0.1"); !errors.Is(err, ErrParameterNotFound) {
		t.Fatalf("expected ErrParameterNotFound, got %v", err)
	}
}

func TestRemoveConstraintDropsWholeCorrelatedBlock(t *testing.T) {
	s := newTestStore(t)
	corr := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1})
	mv, _ := dist.NewMultivariateFromCorrelation([]float64{4.18, 0.2243}, []float64{0.03, 0.0005}, corr)
	if err := s.AddConstraint([]string{"m_b", "Vus"}, mv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RemoveConstraint("m_b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.ConstraintsFor("Vus")) != 0 {
		t.Fatal("correlated block must be removed as a whole")
	}
	if len(s.Blocks()) != 0 {
		t.Fatal("block list not empty after removal")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetConstraint("alpha_s", "0.1185 ± 0.0012"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cp := s.Snapshot()
	if err := cp.SetConstraint("alpha_s", "0.2 ± 0.05"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	orig := s.ConstraintsFor("alpha_s")
	if c := orig[0].Dist.Central()[0]; c != 0.1185 {
		t.Fatalf("snapshot override leaked into shared store: %v", c)
	}
	if cp.Registry() == s.Registry() {
		t.Fatal("snapshot must carry its own registry")
	}
}

func TestCentralValues(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetConstraint("alpha_s", "0.1179 ± 0.0010"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals := s.CentralValues()
	if vals["alpha_s"] != 0.1179 {
		t.Fatalf("constrained central: %v", vals["alpha_s"])
	}
	if vals["m_b"] != 4.18 {
		t.Fatalf("unconstrained default: %v", vals["m_b"])
	}
}
