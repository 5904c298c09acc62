package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"flavkit/internal/constraint"
	"flavkit/internal/param"
	"flavkit/internal/propagate"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "flavkit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testPrediction(runID string) *propagate.Prediction {
	return &propagate.Prediction{
		RunID:      runID,
		Targets:    []propagate.Target{{Observable: "Vub/Vcb"}, {Observable: "rho_ps(B0->l)", Kin: []float64{4.0}}},
		Mean:       []float64{0.0857, 0.85},
		StdDev:     []float64{0.0034, 0.012},
		Covariance: mat.NewSymDense(2, []float64{1.2e-5, 2e-6, 2e-6, 1.4e-4}),
		Evaluated:  5000,
		Discarded:  3,
	}
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)

	pred := testPrediction("run-a")
	require.NoError(t, c.Put("fp1", 7, 5000, pred))

	got, err := c.Get("fp1", 7, 5000, pred.Targets)
	require.NoError(t, err)
	assert.Equal(t, "run-a", got.RunID)
	assert.Equal(t, pred.Mean, got.Mean)
	assert.Equal(t, pred.StdDev, got.StdDev)
	assert.Equal(t, pred.Evaluated, got.Evaluated)
	assert.Equal(t, pred.Discarded, got.Discarded)
	require.NotNil(t, got.Covariance)
	assert.InDelta(t, 2e-6, got.Covariance.At(0, 1), 1e-18)
	assert.Nil(t, got.Samples, "cache never returns raw samples")
}

func TestCacheMiss(t *testing.T) {
	c := openTestCache(t)
	pred := testPrediction("run-b")
	require.NoError(t, c.Put("fp1", 7, 5000, pred))

	// different seed, sample count and targets all miss
	_, err := c.Get("fp1", 8, 5000, pred.Targets)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get("fp1", 7, 9999, pred.Targets)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get("fp1", 7, 5000, pred.Targets[:1])
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get("other", 7, 5000, pred.Targets)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheRefusesPartialRuns(t *testing.T) {
	c := openTestCache(t)
	pred := testPrediction("run-c")
	pred.Partial = true
	assert.Error(t, c.Put("fp1", 7, 5000, pred))
}

func TestCachePrune(t *testing.T) {
	c := openTestCache(t)
	require.NoError(t, c.Put("fp1", 7, 5000, testPrediction("run-d")))

	n, err := c.Prune(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh runs survive pruning")

	n, err = c.Prune(-time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	count, err := c.Len()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFingerprintTracksOverrides(t *testing.T) {
	reg := param.NewRegistry()
	_, err := reg.Register("alpha_s", 0.1185)
	require.NoError(t, err)
	s := constraint.NewStore(reg)
	require.NoError(t, s.SetConstraint("alpha_s", "0.1185 ± 0.0012"))

	fp1, err := Fingerprint(s)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.NoError(t, snap.SetConstraint("alpha_s", "0.1180 ± 0.0010"))
	fp2, err := Fingerprint(snap)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2, "overrides must change the cache key")

	fp3, err := Fingerprint(s)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp3, "fingerprint is stable for an unchanged store")
}
