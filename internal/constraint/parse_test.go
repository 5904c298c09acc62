package constraint

import (
	"math"
	"testing"

	"flavkit/internal/dist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpecForms(t *testing.T) {
	cases := []struct {
		in      string
		central float64
		right   float64
		left    float64
	}{
		{"4.18", 4.18, 0, 0},
		{"0.1185 ± 0.0012", 0.1185, 0.0012, 0.0012},
		{"0.1185 +- 0.0012", 0.1185, 0.0012, 0.0012},
		{"0.1185(12)", 0.1185, 0.0012, 0.0012},
		{"5.28 +0.03 -0.05", 5.28, 0.03, 0.05},
		{"(3.62 ± 0.14) e-3", 3.62e-3, 0.14e-3, 0.14e-3},
		{"(2.997 +0.025 -0.024) 1e-3", 2.997e-3, 0.025e-3, 0.024e-3},
		{"(1.5 ± 0.1) 10^2", 150, 10, 10},
		{"3.62 ± 0.14 e-3", 3.62e-3, 0.14e-3, 0.14e-3},
		// two symmetric systematics add in quadrature: sqrt(0.3^2+0.4^2)=0.5
		{"10 ± 0.3 ± 0.4", 10, 0.5, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			sp, err := ParseSpec(tc.in)
			require.NoError(t, err)
			d, err := sp.Distribution()
			require.NoError(t, err)
			sc, ok := d.(dist.Scalar)
			require.True(t, ok, "expected scalar distribution, got %T", d)
			assert.InDelta(t, tc.central, sc.CentralValue(), math.Abs(tc.central)*1e-12+1e-15)
			assert.InDelta(t, tc.right, sc.ErrorRight(), math.Abs(tc.right)*1e-9+1e-15)
			assert.InDelta(t, tc.left, sc.ErrorLeft(), math.Abs(tc.left)*1e-9+1e-15)
		})
	}
}

func TestParseSpecMultiplicative(t *testing.T) {
	sp, err := ParseSpec("2.0 */ 1.5")
	require.NoError(t, err)
	d, err := sp.Distribution()
	require.NoError(t, err)
	a, ok := d.(*dist.AsymmetricNormal)
	require.True(t, ok, "expected asymmetric normal, got %T", d)
	// 1-sigma range [2/1.5, 2*1.5] = [1.333, 3].
	assert.InDelta(t, 2.0, a.Mu, 1e-12)
	assert.InDelta(t, 1.0, a.SigmaRight, 1e-12)
	assert.InDelta(t, 2.0-2.0/1.5, a.SigmaLeft, 1e-12)
}

func TestParseSpecFlat(t *testing.T) {
	sp, err := ParseSpec("[0.5, 2.0]")
	require.NoError(t, err)
	d, err := sp.Distribution()
	require.NoError(t, err)
	u, ok := d.(*dist.Uniform)
	require.True(t, ok)
	assert.Equal(t, 0.5, u.Min)
	assert.Equal(t, 2.0, u.Max)
}

func TestParseSpecOneSided(t *testing.T) {
	sp, err := ParseSpec("1.0 +0.2 -0")
	require.NoError(t, err)
	d, err := sp.Distribution()
	require.NoError(t, err)
	h, ok := d.(*dist.HalfNormal)
	require.True(t, ok, "expected half normal, got %T", d)
	assert.InDelta(t, 0.2, h.Sigma, 1e-12)
}

func TestParseSpecRejects(t *testing.T) {
	bad := []string{
		"",
		"± 0.1",
		"1.0 ±",
		"1.0 +0.1",
		"1.0 +0.1 +0.2",
		"1.0 */ 0.9",
		"1.0 */ 1.5 ± 0.1",
		"[2.0, 0.5]",
		"abc ± 0.1",
		"1.0 bogus",
	}
	for _, in := range bad {
		if _, err := ParseSpec(in); err == nil {
			t.Fatalf("expected parse error for %q", in)
		}
	}
}

func TestRenderRoundTrip(t *testing.T) {
	// Each syntactic form must survive a parse → render → parse cycle
	// with the central value and the 1-sigma interval intact.
	inputs := []string{
		"4.18",
		"0.1185 ± 0.0012",
		"5.28 +0.03 -0.05",
		"2.0 */ 1.5",
		"[0.5, 2.0]",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			sp, err := ParseSpec(in)
			require.NoError(t, err)
			d1, err := sp.Distribution()
			require.NoError(t, err)
			text, err := Render(d1)
			require.NoError(t, err)
			sp2, err := ParseSpec(text)
			require.NoError(t, err)
			d2, err := sp2.Distribution()
			require.NoError(t, err)

			s1, s2 := d1.(dist.Scalar), d2.(dist.Scalar)
			assert.InDelta(t, s1.CentralValue(), s2.CentralValue(), 1e-12)
			assert.InDelta(t, s1.ErrorRight(), s2.ErrorRight(), 1e-12)
			assert.InDelta(t, s1.ErrorLeft(), s2.ErrorLeft(), 1e-12)
		})
	}
}

func TestEffectiveSigmaFoldsAsymmetric(t *testing.T) {
	sp, err := ParseSpec("1.0 ± 0.3 +0.4 -0.4")
	require.NoError(t, err)
	// 0.3^2 + 0.4*0.4 = 0.25
	assert.InDelta(t, 0.5, sp.EffectiveSigma(), 1e-12)
}
