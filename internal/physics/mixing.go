// Package physics carries the small set of built-in observables that ship
// with the engine. The full catalogue of flavor observables is domain
// content supplied by downstream packages; what lives here is the meson
// mixing helpers and a handful of ratios that exercise the evaluator
// against the default parameter corpus.
package physics

import (
	"fmt"
	"math"

	"flavkit/internal/observable"
)

// MesonQuark maps neutral mesons to their valence quark content.
var MesonQuark = map[string]string{
	"B0": "bd",
	"Bs": "bs",
	"K0": "sd",
	"D0": "cu",
}

// BagMSbarToRGI is the conversion factor between the MSbar definition
// B(mu) of a mixing bag parameter and the renormalization group invariant
// definition Bhat:
//
//	Bhat = b_B^(nf) · B(mu)
//
// See eq. (84) in arXiv:1011.4408. nf follows from the meson: 5 flavors
// for B mesons, 3 for kaons.
func BagMSbarToRGI(alphaS float64, meson string) (float64, error) {
	var j, g float64
	switch meson {
	case "B0", "Bs":
		j = 5165.0 / 3174.0
		g = 6.0 / 23.0
	case "K0":
		j = 307.0 / 162.0
		g = 2.0 / 9.0
	default:
		return 0, fmt.Errorf("bag RGI conversion: no anomalous dimension for meson %q", meson)
	}
	return math.Pow(alphaS, -g) * (1 + alphaS/(4*math.Pi)*j), nil
}

// RegisterDefaults wires the built-in observables into a registry. They
// reference parameters from the default corpus by name.
func RegisterDefaults(reg *observable.Registry) error {
	type def struct {
		name  string
		arity int
		fn    observable.Func
	}
	defs := []def{
		{"Bhat(B0)", 0, func(par map[string]float64, kin ...float64) (float64, error) {
			b, err := BagMSbarToRGI(par["alpha_s"], "B0")
			if err != nil {
				return 0, err
			}
			return b * par["bag_B0_1"], nil
		}},
		{"Bhat(Bs)", 0, func(par map[string]float64, kin ...float64) (float64, error) {
			b, err := BagMSbarToRGI(par["alpha_s"], "Bs")
			if err != nil {
				return 0, err
			}
			return b * par["bag_Bs_1"], nil
		}},
		{"f_Bs/f_B0", 0, func(par map[string]float64, kin ...float64) (float64, error) {
			if par["f_B0"] == 0 {
				return 0, fmt.Errorf("f_B0 vanishes")
			}
			return par["f_Bs"] / par["f_B0"], nil
		}},
		{"Vub/Vcb", 0, func(par map[string]float64, kin ...float64) (float64, error) {
			if par["Vcb"] == 0 {
				return 0, fmt.Errorf("Vcb vanishes")
			}
			return par["Vub"] / par["Vcb"], nil
		}},
		// Leading-order phase-space shape of a semileptonic rate near a
		// kinematic endpoint, as a function of q2. Fails outside the
		// physical region, which exercises the discard machinery on
		// real inputs.
		{"rho_ps(B0->l)", 1, func(par map[string]float64, kin ...float64) (float64, error) {
			q2 := kin[0]
			mB := par["m_B0"]
			if q2 < 0 || q2 > mB*mB {
				return 0, fmt.Errorf("q2=%v outside physical phase space [0, %v]", q2, mB*mB)
			}
			x := q2 / (mB * mB)
			return (1 - x) * (1 - x), nil
		}},
	}
	for _, d := range defs {
		if _, err := reg.Register(d.name, d.arity, d.fn); err != nil {
			return err
		}
	}
	return nil
}
