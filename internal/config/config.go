// Package config loads flavkit configuration from YAML with environment
// overrides. Missing files fall back to defaults so the CLI works out of
// the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all flavkit configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Uncertainty propagation defaults
	Propagation PropagationConfig `yaml:"propagation"`

	// Ensemble cache
	Cache CacheConfig `yaml:"cache"`

	// Extra parameter files layered over the embedded corpus
	Corpus CorpusConfig `yaml:"corpus"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PropagationConfig configures the Monte Carlo engine.
type PropagationConfig struct {
	Samples        int     `yaml:"samples"`
	Workers        int     `yaml:"workers"` // 0 means GOMAXPROCS
	Seed           uint64  `yaml:"seed"`
	FailurePolicy  string  `yaml:"failure_policy"` // discard, nan
	MaxDiscardRate float64 `yaml:"max_discard_rate"`
	KeepSamples    bool    `yaml:"keep_samples"`
}

// CacheConfig configures the SQLite ensemble cache.
type CacheConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// CorpusConfig points at optional parameter files loaded after the
// embedded defaults, so local overrides win.
type CorpusConfig struct {
	ExtraFiles []string `yaml:"extra_files"`
}

// LoggingConfig configures the category log files.
type LoggingConfig struct {
	Directory  string   `yaml:"directory"`
	Level      string   `yaml:"level"` // debug, info, warn, error
	Debug      bool     `yaml:"debug"`
	Categories []string `yaml:"categories"` // empty means all
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "flavkit",
		Version: "0.3.0",

		Propagation: PropagationConfig{
			Samples:        5000,
			Workers:        0,
			FailurePolicy:  "discard",
			MaxDiscardRate: 0.01,
		},

		Cache: CacheConfig{
			Enabled:      true,
			DatabasePath: "data/flavkit.db",
		},

		Logging: LoggingConfig{
			Directory: "logs",
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects values the propagation engine cannot honor.
func (c *Config) Validate() error {
	if c.Propagation.Samples <= 0 {
		return fmt.Errorf("propagation.samples must be positive, got %d", c.Propagation.Samples)
	}
	if c.Propagation.Workers < 0 {
		return fmt.Errorf("propagation.workers must be non-negative, got %d", c.Propagation.Workers)
	}
	switch c.Propagation.FailurePolicy {
	case "discard", "nan":
	default:
		return fmt.Errorf("propagation.failure_policy must be discard or nan, got %q", c.Propagation.FailurePolicy)
	}
	if c.Propagation.MaxDiscardRate < 0 || c.Propagation.MaxDiscardRate > 1 {
		return fmt.Errorf("propagation.max_discard_rate must be in [0,1], got %g", c.Propagation.MaxDiscardRate)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("FLAVKIT_DB"); path != "" {
		c.Cache.DatabasePath = path
	}
	if dir := os.Getenv("FLAVKIT_LOG_DIR"); dir != "" {
		c.Logging.Directory = dir
	}
	if v := os.Getenv("FLAVKIT_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Propagation.Samples = n
		}
	}
	if v := os.Getenv("FLAVKIT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Propagation.Workers = n
		}
	}
	if v := os.Getenv("FLAVKIT_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Propagation.Seed = n
		}
	}
}
