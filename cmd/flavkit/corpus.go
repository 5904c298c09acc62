package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"flavkit/internal/constraint"
	"flavkit/internal/data"
	"flavkit/internal/observable"
	"flavkit/internal/propagate"
)

// defaultSeed keeps unseeded runs reproducible. Pass --seed to vary.
const defaultSeed = 0x5eed

// buildStore assembles the working constraint store: the embedded corpus,
// then any extra files from the config, then command-line overrides. The
// default store is never mutated; everything applies to a snapshot.
func buildStore(overrides []string) (*constraint.Store, *observable.Registry, error) {
	base, obs, err := data.Default()
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.Corpus.ExtraFiles) == 0 && len(overrides) == 0 {
		return base, obs, nil
	}

	store := base.Snapshot()
	for _, path := range cfg.Corpus.ExtraFiles {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("extra corpus file: %w", err)
		}
		err = constraint.ReadYAML(f, store)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("extra corpus file %s: %w", path, err)
		}
	}
	for _, ov := range overrides {
		name, spec, ok := strings.Cut(ov, "=")
		if !ok {
			return nil, nil, fmt.Errorf("override %q: want name=constraint", ov)
		}
		if err := store.SetConstraint(strings.TrimSpace(name), strings.TrimSpace(spec)); err != nil {
			return nil, nil, fmt.Errorf("override %q: %w", ov, err)
		}
	}
	return store, obs, nil
}

func newRand() *rand.Rand {
	s := cfg.Propagation.Seed
	if s == 0 {
		s = defaultSeed
	}
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// parseTargets turns positional observable names plus an optional shared
// kinematic point into propagation targets.
func parseTargets(names []string, kin []float64) []propagate.Target {
	targets := make([]propagate.Target, len(names))
	for i, n := range names {
		targets[i] = propagate.Target{Observable: n, Kin: kin}
	}
	return targets
}
