package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flavkit/internal/likelihood"
	"flavkit/internal/propagate"
)

// chi2Cmd compares predictions against measurements
var chi2Cmd = &cobra.Command{
	Use:   "chi2 [measurements.yaml]",
	Short: "Compute chi-square of predictions against measurements",
	Long: `Reads experimental measurements from a YAML file, predicts the
measured observables from the parameter corpus and reports the
chi-square and log-likelihood per measurement. Theory and experiment
covariances are added, so strongly constrained predictions still get
their uncertainty counted.

Measurement file format:
  - name: fB ratio, lattice average
    observables: [f_Bs/f_B0]
    values: ["1.201 ± 0.016"]`,
	Args: cobra.ExactArgs(1),
	RunE: runChi2,
}

var (
	chi2Overrides []string
	chi2Method    string
)

func init() {
	chi2Cmd.Flags().StringArrayVar(&chi2Overrides, "set", nil,
		"Constraint override, name=\"central ± error\" (repeatable)")
	chi2Cmd.Flags().StringVar(&chi2Method, "method", "mc", "Propagation method: mc or linear")
}

func runChi2(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	measurements, err := likelihood.LoadMeasurements(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(measurements) == 0 {
		return fmt.Errorf("%s contains no measurements", args[0])
	}

	st, obs, err := buildStore(chi2Overrides)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	total := 0.0
	totalDim := 0
	for _, m := range measurements {
		targets := parseTargets(m.Observables, nil)

		var pred *propagate.Prediction
		switch chi2Method {
		case "linear":
			pred, err = propagate.Linear(st, obs, targets)
		case "mc":
			opts := propagate.Options{
				N:              cfg.Propagation.Samples,
				Workers:        cfg.Propagation.Workers,
				MaxDiscardRate: cfg.Propagation.MaxDiscardRate,
			}
			pred, err = propagate.MonteCarlo(ctx, st, obs, targets, newRand(), opts)
		default:
			return fmt.Errorf("unknown method %q, want mc or linear", chi2Method)
		}
		if err != nil {
			return fmt.Errorf("measurement %q: %w", m.Name, err)
		}
		if pred.Partial {
			return fmt.Errorf("measurement %q: interrupted", m.Name)
		}

		chi2, err := likelihood.Chi2(pred, m)
		if err != nil {
			return fmt.Errorf("measurement %q: %w", m.Name, err)
		}
		logL, err := likelihood.LogLikelihood(pred, m)
		if err != nil {
			return fmt.Errorf("measurement %q: %w", m.Name, err)
		}
		fmt.Printf("%-32s chi2 = %8.3f  (ndf %d, logL %.3f)\n", m.Name, chi2, len(m.Observables), logL)
		total += chi2
		totalDim += len(m.Observables)
	}

	if len(measurements) > 1 {
		fmt.Printf("%-32s chi2 = %8.3f  (ndf %d)\n", "TOTAL", total, totalDim)
	}
	return nil
}
