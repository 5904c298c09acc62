// Package propagate implements uncertainty propagation: it draws joint
// parameter samples from a constraint store, pushes them through observable
// functions, and aggregates the resulting prediction distributions. Two
// paths exist: Monte Carlo (captures non-Gaussian tails, parallel) and
// linear delta-method propagation (deterministic, fast).
package propagate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrExcessiveDiscardRate aborts a propagation whose invalid-sample
// fraction exceeds the configured threshold; that signals a
// misconfiguration, not numerical noise.
var ErrExcessiveDiscardRate = errors.New("excessive sample discard rate")

// FailurePolicy says what happens when a single sample evaluation hits a
// domain error (an unphysical point).
type FailurePolicy int

const (
	// Discard drops the failing sample and counts it; the run aborts
	// when the discard fraction exceeds Options.MaxDiscardRate.
	Discard FailurePolicy = iota
	// PropagateNaN keeps the failing sample with a NaN value. Summary
	// statistics then carry NaN, which downstream consumers must
	// handle explicitly.
	PropagateNaN
)

// Options tunes a Monte Carlo propagation.
type Options struct {
	// N is the ensemble size.
	N int
	// Workers bounds parallel evaluation goroutines; 0 means GOMAXPROCS.
	Workers int
	// Policy selects the per-sample failure behavior.
	Policy FailurePolicy
	// MaxDiscardRate is the tolerated invalid-sample fraction under the
	// Discard policy, in (0, 1]. Zero applies DefaultMaxDiscardRate.
	MaxDiscardRate float64
	// KeepSamples retains the full evaluated ensemble on the Prediction.
	KeepSamples bool
}

// DefaultMaxDiscardRate tolerates occasional edge-of-phase-space draws
// while still failing loudly on systematic breakage.
const DefaultMaxDiscardRate = 0.01

// Target names one observable evaluation: the observable plus its fixed
// kinematic arguments for this prediction.
type Target struct {
	Observable string
	Kin        []float64
}

func (t Target) String() string {
	if len(t.Kin) == 0 {
		return t.Observable
	}
	return fmt.Sprintf("%s%v", t.Observable, t.Kin)
}

// SampleError records the first failure of a given run for diagnostics.
type SampleError struct {
	SampleIndex int
	Target      Target
	Err         error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %d, target %s: %v", e.SampleIndex, e.Target, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Prediction is the outcome of one propagation run over one or more
// targets. Means, standard deviations and the cross-target covariance are
// always filled; the raw sample matrix only with Options.KeepSamples.
type Prediction struct {
	RunID   string
	Targets []Target

	Mean       []float64
	StdDev     []float64
	Covariance *mat.SymDense

	// Samples holds one evaluated row per kept sample (rows × targets).
	Samples *mat.Dense

	// Evaluated counts samples contributing to the aggregates, Discarded
	// the ones dropped under the Discard policy.
	Evaluated int
	Discarded int

	// Partial marks a run cut short by cancellation. Partial aggregates
	// are valid over the evaluated subset but must never be presented as
	// a complete run.
	Partial bool

	// FirstError is the first per-sample failure, kept for diagnostics.
	FirstError *SampleError
}

// newPrediction allocates the target-indexed slices.
func newPrediction(targets []Target) *Prediction {
	return &Prediction{
		RunID:   uuid.NewString(),
		Targets: append([]Target(nil), targets...),
		Mean:    make([]float64, len(targets)),
		StdDev:  make([]float64, len(targets)),
	}
}

// aggregate fills the summary statistics from the evaluated rows.
// rows is len-n of []float64 values per target; only rows flagged valid
// contribute.
func (p *Prediction) aggregate(values *mat.Dense, valid []bool, keep bool) {
	n, m := values.Dims()
	kept := 0
	for i := 0; i < n; i++ {
		if valid[i] {
			kept++
		}
	}
	p.Evaluated = kept

	compact := mat.NewDense(max(kept, 1), m, nil)
	row := 0
	for i := 0; i < n; i++ {
		if !valid[i] {
			continue
		}
		for j := 0; j < m; j++ {
			compact.Set(row, j, values.At(i, j))
		}
		row++
	}

	if kept == 0 {
		for j := 0; j < m; j++ {
			p.Mean[j] = math.NaN()
			p.StdDev[j] = math.NaN()
		}
		return
	}

	col := make([]float64, kept)
	for j := 0; j < m; j++ {
		mat.Col(col, j, compact)
		p.Mean[j] = stat.Mean(col, nil)
		if kept > 1 {
			p.StdDev[j] = stat.StdDev(col, nil)
		}
	}
	if kept > 1 {
		cov := mat.NewSymDense(m, nil)
		stat.CovarianceMatrix(cov, compact, nil)
		p.Covariance = cov
	}
	if keep {
		p.Samples = compact
	}
}

// Quantile returns the empirical q-quantile of target index i. It needs
// the run to have kept its samples.
func (p *Prediction) Quantile(i int, q float64) (float64, error) {
	if p.Samples == nil {
		return 0, fmt.Errorf("quantile: run %s did not keep samples", p.RunID)
	}
	n, _ := p.Samples.Dims()
	col := make([]float64, n)
	mat.Col(col, i, p.Samples)
	sort.Float64s(col)
	return stat.Quantile(q, stat.Empirical, col, nil), nil
}

// CentralInterval returns the central 68.3% interval of target i, the
// Monte Carlo analogue of a 1-sigma band.
func (p *Prediction) CentralInterval(i int) (lo, hi float64, err error) {
	lo, err = p.Quantile(i, 0.158655)
	if err != nil {
		return 0, 0, err
	}
	hi, err = p.Quantile(i, 0.841345)
	return lo, hi, err
}
