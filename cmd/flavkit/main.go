package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flavkit/internal/config"
	"flavkit/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	samples    int
	workers    int
	seed       uint64
	noCache    bool

	// Loaded configuration
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "flavkit",
	Short: "flavkit - parameter constraints and uncertainty propagation",
	Long: `flavkit manages a corpus of physics parameters with probabilistic
constraints and propagates their uncertainties to derived observables.

Constraints come from an embedded default corpus (extendable via YAML
files) and support Gaussian, asymmetric, multivariate and uniform
distributions. Predictions run either by Monte Carlo over the joint
parameter ensemble or by linear error propagation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		// Flags beat config file values.
		if cmd.Flags().Changed("samples") {
			cfg.Propagation.Samples = samples
		}
		if cmd.Flags().Changed("workers") {
			cfg.Propagation.Workers = workers
		}
		if cmd.Flags().Changed("seed") {
			cfg.Propagation.Seed = seed
		}
		if noCache {
			cfg.Cache.Enabled = false
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return logging.Initialize(cfg.Logging.Directory, logging.Settings{
			Debug:      verbose || cfg.Logging.Debug,
			Level:      cfg.Logging.Level,
			Categories: categorySet(cfg.Logging.Categories),
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func categorySet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "flavkit.yaml", "Config file path")
	rootCmd.PersistentFlags().IntVarP(&samples, "samples", "n", 5000, "Monte Carlo ensemble size")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Evaluation workers (0 = GOMAXPROCS)")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "RNG seed (0 = fixed default)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Skip the ensemble cache")

	rootCmd.AddCommand(paramsCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(chi2Cmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
