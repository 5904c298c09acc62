package physics

import (
	"math"
	"testing"

	"flavkit/internal/observable"
)

func TestBagMSbarToRGI(t *testing.T) {
	// nf=5 at alpha_s(m_b) ≈ 0.2271: Bhat/B ≈ alpha_s^(-6/23)(1 + alpha_s J/(4π)).
	alphaS := 0.2271
	got, err := BagMSbarToRGI(alphaS, "B0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := math.Pow(alphaS, -6.0/23.0) * (1 + alphaS/(4*math.Pi)*5165.0/3174.0)
	if math.Abs(got-want) > 1e-15 {
		t.Fatalf("got %v want %v", got, want)
	}
	if got < 1.4 || got > 1.6 {
		t.Fatalf("conversion factor outside the expected ballpark: %v", got)
	}

	// Bs uses the same nf=5 coefficients.
	bs, _ := BagMSbarToRGI(alphaS, "Bs")
	if bs != got {
		t.Fatalf("B0 and Bs conversions must agree: %v vs %v", bs, got)
	}

	// Kaons run with nf=3.
	k0, err := BagMSbarToRGI(0.2964, "K0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k0 == got {
		t.Fatal("K0 must use the three-flavor coefficients")
	}
}

func TestBagMSbarToRGIUnknownMeson(t *testing.T) {
	if _, err := BagMSbarToRGI(0.22, "D0"); err == nil {
		t.Fatal("expected an error for a meson without coefficients")
	}
}

func TestRegisterDefaults(t *testing.T) {
	reg := observable.NewRegistry()
	if err := RegisterDefaults(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	par := map[string]float64{
		"alpha_s":  0.1185,
		"bag_B0_1": 0.913,
		"bag_Bs_1": 0.952,
		"f_B0":     0.1905,
		"f_Bs":     0.2277,
		"Vub":      3.7e-3,
		"Vcb":      4.1e-2,
		"m_B0":     5.27961,
	}
	ratio, err := reg.Evaluate("f_Bs/f_B0", par)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(ratio-0.2277/0.1905) > 1e-12 {
		t.Fatalf("ratio off: %v", ratio)
	}

	// The phase-space observable rejects unphysical q2.
	if _, err := reg.Evaluate("rho_ps(B0->l)", par, -1.0); err == nil {
		t.Fatal("expected phase-space error for q2 < 0")
	}
	v, err := reg.Evaluate("rho_ps(B0->l)", par, 3.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	x := 3.5 / (5.27961 * 5.27961)
	if math.Abs(v-(1-x)*(1-x)) > 1e-12 {
		t.Fatalf("phase-space shape off: %v", v)
	}
}
