package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Propagation.Samples != 5000 {
		t.Errorf("default samples = %d, want 5000", cfg.Propagation.Samples)
	}
	if cfg.Propagation.FailurePolicy != "discard" {
		t.Errorf("default failure policy = %q, want discard", cfg.Propagation.FailurePolicy)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flavkit.yaml")
	body := `
propagation:
  samples: 20000
  workers: 4
  failure_policy: nan
cache:
  enabled: false
corpus:
  extra_files:
    - local_params.yml
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Propagation.Samples != 20000 {
		t.Errorf("samples = %d, want 20000", cfg.Propagation.Samples)
	}
	if cfg.Propagation.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Propagation.Workers)
	}
	if cfg.Propagation.FailurePolicy != "nan" {
		t.Errorf("failure policy = %q, want nan", cfg.Propagation.FailurePolicy)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should be disabled")
	}
	if len(cfg.Corpus.ExtraFiles) != 1 || cfg.Corpus.ExtraFiles[0] != "local_params.yml" {
		t.Errorf("extra files = %v", cfg.Corpus.ExtraFiles)
	}
	// untouched sections keep defaults
	if cfg.Propagation.MaxDiscardRate != 0.01 {
		t.Errorf("max discard rate = %g, want 0.01", cfg.Propagation.MaxDiscardRate)
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flavkit.yaml")
	if err := os.WriteFile(path, []byte("propagation:\n  failure_policy: retry\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown failure policy")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLAVKIT_DB", "/tmp/other.db")
	t.Setenv("FLAVKIT_SAMPLES", "999")
	t.Setenv("FLAVKIT_SEED", "42")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.DatabasePath != "/tmp/other.db" {
		t.Errorf("db path = %q", cfg.Cache.DatabasePath)
	}
	if cfg.Propagation.Samples != 999 {
		t.Errorf("samples = %d, want 999", cfg.Propagation.Samples)
	}
	if cfg.Propagation.Seed != 42 {
		t.Errorf("seed = %d, want 42", cfg.Propagation.Seed)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "flavkit.yaml")
	cfg := DefaultConfig()
	cfg.Propagation.Samples = 777
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Propagation.Samples != 777 {
		t.Errorf("round-tripped samples = %d, want 777", got.Propagation.Samples)
	}
}
