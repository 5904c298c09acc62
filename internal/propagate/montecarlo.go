package propagate

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"flavkit/internal/constraint"
	"flavkit/internal/logging"
	"flavkit/internal/observable"
)

// MonteCarlo propagates parameter uncertainties to the targets by
// evaluating every observable over a joint sample ensemble.
//
// The run walks SAMPLING → EVALUATING → AGGREGATING. Sampling is
// sequential (it owns the RNG); evaluation fans out over workers, which
// is sound because observables are pure; aggregation reduces once all
// workers are done. Cancelling ctx stops evaluation early and yields a
// Prediction with Partial set; partial aggregates cover only the samples
// evaluated before the cut.
func MonteCarlo(ctx context.Context, store *constraint.Store, reg *observable.Registry,
	targets []Target, rnd *rand.Rand, opts Options) (*Prediction, error) {

	if len(targets) == 0 {
		return nil, fmt.Errorf("monte carlo: no targets")
	}
	if opts.N <= 0 {
		return nil, fmt.Errorf("monte carlo: ensemble size must be positive, got %d", opts.N)
	}
	// Resolve all targets up front so a typo fails before any sampling.
	obs := make([]*observable.Observable, len(targets))
	for i, tgt := range targets {
		o, err := reg.Get(tgt.Observable)
		if err != nil {
			return nil, fmt.Errorf("monte carlo: %w", err)
		}
		obs[i] = o
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	maxDiscard := opts.MaxDiscardRate
	if maxDiscard == 0 {
		maxDiscard = DefaultMaxDiscardRate
	}

	timer := logging.StartTimer(logging.CategoryPropagate, fmt.Sprintf("MonteCarlo n=%d targets=%d", opts.N, len(targets)))
	defer timer.StopWithInfo()

	// SAMPLING
	samples := store.Sample(rnd, opts.N)

	// EVALUATING
	values := mat.NewDense(opts.N, len(targets), nil)
	valid := make([]bool, opts.N)

	var mu sync.Mutex
	var firstErr *SampleError
	discarded := 0
	evaluatedHigh := 0 // highest sample index reached before a cancel

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	chunk := (opts.N + workers - 1) / workers
	for lo := 0; lo < opts.N; lo += chunk {
		lo, hi := lo, min(lo+chunk, opts.N)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ok := true
				var sampleErr *SampleError
				for j, o := range obs {
					v, err := o.Evaluate(samples[i], targets[j].Kin...)
					if err != nil {
						sampleErr = &SampleError{SampleIndex: i, Target: targets[j], Err: err}
						if opts.Policy == PropagateNaN {
							values.Set(i, j, math.NaN())
							continue
						}
						ok = false
						break
					}
					values.Set(i, j, v)
				}
				mu.Lock()
				if sampleErr != nil {
					if firstErr == nil {
						firstErr = sampleErr
					}
					if opts.Policy == Discard {
						discarded++
					}
				}
				if ok {
					valid[i] = true
				}
				if i >= evaluatedHigh {
					evaluatedHigh = i + 1
				}
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	// AGGREGATING
	pred := newPrediction(targets)
	pred.FirstError = firstErr
	pred.Discarded = discarded

	if err != nil {
		// Cancellation: flag and aggregate what was evaluated. The
		// discard-rate check is skipped; a cut ensemble says nothing
		// about the configuration.
		pred.Partial = true
		logging.Propagate("run %s cancelled after %d/%d samples", pred.RunID, evaluatedHigh, opts.N)
		pred.aggregate(values, valid, opts.KeepSamples)
		return pred, nil
	}

	if opts.Policy == Discard {
		rate := float64(discarded) / float64(opts.N)
		if rate > maxDiscard {
			detail := ""
			if firstErr != nil {
				detail = fmt.Sprintf("; first failure: %v", firstErr)
			}
			return nil, fmt.Errorf("monte carlo: %d of %d samples discarded (rate %.3f > %.3f)%s: %w",
				discarded, opts.N, rate, maxDiscard, detail, ErrExcessiveDiscardRate)
		}
		if discarded > 0 {
			logging.Propagate("run %s discarded %d of %d samples (first: %v)", pred.RunID, discarded, opts.N, firstErr)
		}
	}

	pred.aggregate(values, valid, opts.KeepSamples)
	return pred, nil
}
