package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flavkit/internal/constraint"
	"flavkit/internal/logging"
	"flavkit/internal/observable"
	"flavkit/internal/propagate"
	"flavkit/internal/store"
)

// predictCmd propagates parameter uncertainties to observables
var predictCmd = &cobra.Command{
	Use:   "predict [observable...]",
	Short: "Predict observables with propagated uncertainties",
	Long: `Evaluates one or more observables over the parameter corpus and
reports central values with 1-sigma uncertainties.

The default method draws a Monte Carlo ensemble from the joint
constraint distribution; --method linear switches to first-order error
propagation, which is fast but ignores non-Gaussian tails.

Examples:
  flavkit predict "Vub/Vcb"
  flavkit predict --kin 4.0 "rho_ps(B0->l)"
  flavkit predict --set 'alpha_s=0.1180 ± 0.0010' "Bhat(B0)" "Bhat(Bs)"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

var (
	predictMethod    string
	predictKin       []float64
	predictOverrides []string
	predictPolicy    string
	predictQuantiles bool
)

func init() {
	predictCmd.Flags().StringVar(&predictMethod, "method", "mc", "Propagation method: mc or linear")
	predictCmd.Flags().Float64SliceVar(&predictKin, "kin", nil, "Kinematic arguments shared by all observables")
	predictCmd.Flags().StringArrayVar(&predictOverrides, "set", nil,
		"Constraint override, name=\"central ± error\" (repeatable)")
	predictCmd.Flags().StringVar(&predictPolicy, "policy", "", "Per-sample failure policy: discard or nan (default from config)")
	predictCmd.Flags().BoolVar(&predictQuantiles, "quantiles", false, "Report the central 68.3% interval from the sample ensemble")
}

func runPredict(cmd *cobra.Command, args []string) error {
	st, obs, err := buildStore(predictOverrides)
	if err != nil {
		return err
	}
	targets := parseTargets(args, predictKin)

	var pred *propagate.Prediction
	switch predictMethod {
	case "linear":
		pred, err = propagate.Linear(st, obs, targets)
		if err != nil {
			return err
		}
	case "mc":
		pred, err = runMonteCarlo(cmd, st, obs, targets)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown method %q, want mc or linear", predictMethod)
	}

	return printPrediction(pred)
}

func runMonteCarlo(cmd *cobra.Command, st *constraint.Store, obs *observable.Registry, targets []propagate.Target) (*propagate.Prediction, error) {
	opts := propagate.Options{
		N:              cfg.Propagation.Samples,
		Workers:        cfg.Propagation.Workers,
		MaxDiscardRate: cfg.Propagation.MaxDiscardRate,
		KeepSamples:    predictQuantiles || cfg.Propagation.KeepSamples,
	}
	policy := predictPolicy
	if policy == "" {
		policy = cfg.Propagation.FailurePolicy
	}
	switch policy {
	case "nan":
		opts.Policy = propagate.PropagateNaN
	case "discard", "":
		opts.Policy = propagate.Discard
	default:
		return nil, fmt.Errorf("unknown failure policy %q, want discard or nan", policy)
	}

	useCache := cfg.Cache.Enabled && !opts.KeepSamples
	var (
		cache       *store.Cache
		fingerprint string
	)
	if useCache {
		var err error
		cache, err = store.Open(cfg.Cache.DatabasePath)
		if err != nil {
			logger.Warn("ensemble cache unavailable", zap.Error(err))
			useCache = false
		} else {
			defer cache.Close()
			fingerprint, err = store.Fingerprint(st)
			if err != nil {
				return nil, err
			}
			seed := cfg.Propagation.Seed
			if seed == 0 {
				seed = defaultSeed
			}
			if pred, err := cache.Get(fingerprint, seed, opts.N, targets); err == nil {
				fmt.Fprintf(os.Stderr, "(cached run %s)\n", pred.RunID)
				return pred, nil
			} else if !errors.Is(err, store.ErrCacheMiss) {
				logger.Warn("cache lookup failed", zap.Error(err))
			}
		}
	}

	// SIGINT yields a partial result instead of dropping the run.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pred, err := propagate.MonteCarlo(ctx, st, obs, targets, newRand(), opts)
	if err != nil {
		return nil, err
	}
	if pred.Discarded > 0 {
		logging.Propagate("run %s discarded %d of %d samples", pred.RunID, pred.Discarded, opts.N)
	}

	if useCache && !pred.Partial {
		seed := cfg.Propagation.Seed
		if seed == 0 {
			seed = defaultSeed
		}
		if err := cache.Put(fingerprint, seed, opts.N, pred); err != nil {
			logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return pred, nil
}

func printPrediction(pred *propagate.Prediction) error {
	if pred.Partial {
		fmt.Printf("PARTIAL RUN: interrupted after %d samples\n", pred.Evaluated)
	}
	for i, tgt := range pred.Targets {
		fmt.Printf("%-24s %12.6g ± %-12.6g\n", tgt.String(), pred.Mean[i], pred.StdDev[i])
		if predictQuantiles && pred.Samples != nil {
			lo, hi, err := pred.CentralInterval(i)
			if err != nil {
				return err
			}
			fmt.Printf("%-24s [%.6g, %.6g] central 68.3%%\n", "", lo, hi)
		}
	}
	if pred.Discarded > 0 {
		fmt.Printf("(%d of %d samples discarded)\n", pred.Discarded, pred.Evaluated+pred.Discarded)
	}
	if n := len(pred.Targets); n > 1 && pred.Covariance != nil {
		fmt.Println("Correlation matrix:")
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				fmt.Printf(" %8.4f", correlationAt(pred, i, j))
			}
			fmt.Println()
		}
	}
	return nil
}

func correlationAt(pred *propagate.Prediction, i, j int) float64 {
	d := math.Sqrt(pred.Covariance.At(i, i) * pred.Covariance.At(j, j))
	if d == 0 {
		if i == j {
			return 1
		}
		return 0
	}
	return pred.Covariance.At(i, j) / d
}
