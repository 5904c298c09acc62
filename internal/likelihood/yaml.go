package likelihood

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"flavkit/internal/constraint"
	"flavkit/internal/dist"
)

// measurementDoc mirrors one measurement entry in a YAML file. Values use
// the same uncertainty-string grammar as parameter files; asymmetric
// errors are folded to a symmetric 1-sigma before building the Gaussian.
type measurementDoc struct {
	Name        string    `yaml:"name"`
	Observables []string  `yaml:"observables"`
	Values      []string  `yaml:"values"`
	Correlation yaml.Node `yaml:"correlation"`
}

// LoadMeasurements reads a list of experimental measurements from YAML.
//
//	- name: fB ratio, lattice average
//	  observables: [f_Bs/f_B0]
//	  values: ["1.201 ± 0.016"]
func LoadMeasurements(r io.Reader) ([]*Measurement, error) {
	var docs []measurementDoc
	if err := yaml.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("load measurements: %w", err)
	}

	out := make([]*Measurement, 0, len(docs))
	for di, doc := range docs {
		if len(doc.Observables) == 0 {
			return nil, fmt.Errorf("load measurements: entry %d (%q): no observables", di, doc.Name)
		}
		if len(doc.Values) != len(doc.Observables) {
			return nil, fmt.Errorf("load measurements: entry %d (%q): %d values for %d observables",
				di, doc.Name, len(doc.Values), len(doc.Observables))
		}

		centrals := make([]float64, len(doc.Values))
		errs := make([]float64, len(doc.Values))
		for i, v := range doc.Values {
			sp, err := constraint.ParseSpec(v)
			if err != nil {
				return nil, fmt.Errorf("load measurements: entry %d (%q), value %d: %w", di, doc.Name, i, err)
			}
			centrals[i] = sp.Central
			errs[i] = sp.EffectiveSigma()
			if errs[i] == 0 {
				return nil, fmt.Errorf("load measurements: entry %d (%q): observable %s has zero uncertainty",
					di, doc.Name, doc.Observables[i])
			}
		}

		var d dist.Distribution
		if len(centrals) == 1 {
			n, err := dist.NewNormal(centrals[0], errs[0])
			if err != nil {
				return nil, fmt.Errorf("load measurements: entry %d (%q): %w", di, doc.Name, err)
			}
			d = n
		} else {
			corr, err := constraint.ParseCorrelation(&doc.Correlation, len(centrals))
			if err != nil {
				return nil, fmt.Errorf("load measurements: entry %d (%q): %w", di, doc.Name, err)
			}
			mv, err := dist.NewMultivariateFromCorrelation(centrals, errs, corr)
			if err != nil {
				return nil, fmt.Errorf("load measurements: entry %d (%q): %w", di, doc.Name, err)
			}
			d = mv
		}

		m, err := NewMeasurement(doc.Name, doc.Observables, d)
		if err != nil {
			return nil, fmt.Errorf("load measurements: entry %d: %w", di, err)
		}
		out = append(out, m)
	}
	return out, nil
}
