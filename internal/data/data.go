// Package data embeds the default parameter corpus and builds the shared
// default registry, constraint store and observable registry. The default
// instances are ordinary values: what-if analyses snapshot them instead of
// mutating shared state.
package data

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"flavkit/internal/constraint"
	"flavkit/internal/logging"
	"flavkit/internal/observable"
	"flavkit/internal/param"
	"flavkit/internal/physics"
)

//go:embed parameters_metadata.yml
var metadataYAML []byte

//go:embed parameters_uncorrelated.yml
var uncorrelatedYAML []byte

//go:embed parameters_correlated.yml
var correlatedYAML []byte

var (
	defaultOnce  sync.Once
	defaultStore *constraint.Store
	defaultObs   *observable.Registry
	defaultErr   error
)

// Build constructs a fresh registry and constraint store from the
// embedded corpus. Every call returns an independent store.
func Build() (*constraint.Store, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "corpus load")
	defer timer.Stop()

	reg := param.NewRegistry()
	if err := constraint.LoadMetadata(bytes.NewReader(metadataYAML), reg); err != nil {
		return nil, fmt.Errorf("default corpus: %w", err)
	}
	store := constraint.NewStore(reg)
	if err := constraint.LoadValues(bytes.NewReader(uncorrelatedYAML), store); err != nil {
		return nil, fmt.Errorf("default corpus: %w", err)
	}
	if err := constraint.LoadCorrelated(bytes.NewReader(correlatedYAML), store); err != nil {
		return nil, fmt.Errorf("default corpus: %w", err)
	}
	logging.Boot("default corpus loaded: %d parameters, %d constraint blocks",
		reg.Len(), len(store.Blocks()))
	return store, nil
}

// BuildObservables constructs a fresh observable registry with the
// built-in observables.
func BuildObservables() (*observable.Registry, error) {
	reg := observable.NewRegistry()
	if err := physics.RegisterDefaults(reg); err != nil {
		return nil, fmt.Errorf("default observables: %w", err)
	}
	return reg, nil
}

// Default returns the process-wide default store and observable registry,
// built once on first use. Treat them as read-only: use Snapshot on the
// store for overrides.
func Default() (*constraint.Store, *observable.Registry, error) {
	defaultOnce.Do(func() {
		defaultStore, defaultErr = Build()
		if defaultErr != nil {
			return
		}
		defaultObs, defaultErr = BuildObservables()
	})
	return defaultStore, defaultObs, defaultErr
}
