// YAML corpus formats. The parameter corpus lives in three file shapes,
// all loaded at startup:
//
//   - metadata: parameter name → {description, tex}
//   - uncorrelated values: parameter name → uncertainty string (or bare
//     scalar)
//   - correlated groups: list of {values: [{name: string}, ...],
//     correlation: rho | lower-triangle | full matrix}
//
// WriteYAML dumps a store back out as one combined document that ReadYAML
// accepts, so a corpus round-trips.
package constraint

import (
	"bytes"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"flavkit/internal/dist"
	"flavkit/internal/param"
)

// LoadMetadata reads a metadata mapping and registers any parameters not
// yet known, then fills in their display metadata.
func LoadMetadata(r io.Reader, reg *param.Registry) error {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}
	doc := unwrapDocument(&root)
	if doc.Kind != yaml.MappingNode {
		return fmt.Errorf("load metadata: expected a mapping at top level")
	}
	for i := 0; i < len(doc.Content); i += 2 {
		name := doc.Content[i].Value
		var meta struct {
			Description string `yaml:"description"`
			Tex         string `yaml:"tex"`
		}
		if err := doc.Content[i+1].Decode(&meta); err != nil {
			return fmt.Errorf("load metadata: parameter %q: %w", name, err)
		}
		if !reg.Has(name) {
			if _, err := reg.Register(name, 0); err != nil {
				return fmt.Errorf("load metadata: parameter %q: %w", name, err)
			}
		}
		if err := reg.SetMetadata(name, meta.Description, meta.Tex); err != nil {
			return fmt.Errorf("load metadata: %w", err)
		}
	}
	return nil
}

// LoadValues reads an uncorrelated-values mapping. Every named parameter
// must already be registered; its constraints are replaced by the parsed
// one and its registry default is moved to the new central value.
func LoadValues(r io.Reader, s *Store) error {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return fmt.Errorf("load values: %w", err)
	}
	doc := unwrapDocument(&root)
	if doc.Kind != yaml.MappingNode {
		return fmt.Errorf("load values: expected a mapping at top level")
	}
	for i := 0; i < len(doc.Content); i += 2 {
		name := doc.Content[i].Value
		spec := doc.Content[i+1].Value
		if err := s.SetConstraint(name, spec); err != nil {
			return fmt.Errorf("load values: %w", err)
		}
		sp, _ := ParseSpec(spec)
		if err := s.Registry().SetDefault(name, sp.Central); err != nil {
			return fmt.Errorf("load values: %w", err)
		}
	}
	return nil
}

// correlatedGroup is one entry in a correlated-values file.
type correlatedGroup struct {
	Values      []map[string]string `yaml:"values"`
	Correlation yaml.Node           `yaml:"correlation"`
}

// LoadCorrelated reads a list of correlated parameter groups. Each group
// becomes one multivariate block: the per-parameter uncertainty strings
// supply central values and quadrature-folded 1-sigma errors, and the
// correlation entry supplies the correlation matrix.
func LoadCorrelated(r io.Reader, s *Store) error {
	var groups []correlatedGroup
	if err := yaml.NewDecoder(r).Decode(&groups); err != nil {
		return fmt.Errorf("load correlated: %w", err)
	}
	for gi, g := range groups {
		var names []string
		var centrals, errs []float64
		for _, entry := range g.Values {
			if len(entry) != 1 {
				return fmt.Errorf("load correlated: group %d: each values entry must hold exactly one parameter", gi)
			}
			for name, spec := range entry {
				sp, err := ParseSpec(spec)
				if err != nil {
					return fmt.Errorf("load correlated: group %d, parameter %q: %w", gi, name, err)
				}
				names = append(names, name)
				centrals = append(centrals, sp.Central)
				errs = append(errs, sp.EffectiveSigma())
			}
		}
		corr, err := fixCorrelation(&g.Correlation, len(names))
		if err != nil {
			return fmt.Errorf("load correlated: group %d (%v): %w", gi, names, err)
		}
		mv, err := dist.NewMultivariateFromCorrelation(centrals, errs, corr)
		if err != nil {
			return fmt.Errorf("load correlated: group %d (%v): %w", gi, names, err)
		}
		if err := s.AddConstraint(names, mv); err != nil {
			return fmt.Errorf("load correlated: %w", err)
		}
		for i, name := range names {
			if err := s.Registry().SetDefault(name, centrals[i]); err != nil {
				return fmt.Errorf("load correlated: %w", err)
			}
		}
	}
	return nil
}

// ParseCorrelation decodes a correlation entry for n quantities. It is
// shared with measurement files, which spell correlations the same way
// parameter files do.
func ParseCorrelation(node *yaml.Node, n int) (*mat.SymDense, error) {
	return fixCorrelation(node, n)
}

// fixCorrelation accepts the three correlation spellings: a single number
// (uniform off-diagonal correlation), a lower-triangular list of rows of
// increasing length, or a full square matrix. The result always has a
// unit diagonal and is symmetric.
func fixCorrelation(node *yaml.Node, n int) (*mat.SymDense, error) {
	if node == nil || node.Kind == 0 {
		return identityCorr(n), nil
	}
	var rho float64
	if err := node.Decode(&rho); err == nil {
		out := identityCorr(n)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				out.SetSym(i, j, rho)
			}
		}
		return out, nil
	}
	var rows [][]float64
	if err := node.Decode(&rows); err != nil {
		return nil, fmt.Errorf("correlation must be a number or a matrix: %w", err)
	}
	if len(rows) != n {
		return nil, fmt.Errorf("correlation has %d rows for %d parameters", len(rows), n)
	}
	out := identityCorr(n)
	lowerTriangle := true
	for i, row := range rows {
		if len(row) != i+1 {
			lowerTriangle = false
			break
		}
	}
	if lowerTriangle {
		for i, row := range rows {
			if row[i] != 1 {
				return nil, fmt.Errorf("correlation diagonal entry %d is %v, want 1", i, row[i])
			}
			for j := 0; j < i; j++ {
				out.SetSym(j, i, row[j])
			}
		}
		return out, nil
	}
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("correlation row %d has %d entries, want %d", i, len(row), n)
		}
		if row[i] != 1 {
			return nil, fmt.Errorf("correlation diagonal entry %d is %v, want 1", i, row[i])
		}
		for j := i + 1; j < n; j++ {
			if rows[j][i] != row[j] {
				return nil, fmt.Errorf("correlation matrix is not symmetric at (%d,%d)", i, j)
			}
			out.SetSym(i, j, row[j])
		}
	}
	return out, nil
}

func identityCorr(n int) *mat.SymDense {
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, 1)
	}
	return out
}

// corpusDoc is the combined document shape used by WriteYAML/ReadYAML.
type corpusDoc struct {
	Parameters yaml.Node         `yaml:"parameters"`
	Correlated []correlatedGroup `yaml:"correlated,omitempty"`
}

// WriteYAML dumps every constraint in the store: scalar blocks as
// rendered uncertainty strings, multivariate blocks as correlated groups.
func WriteYAML(w io.Writer, s *Store) error {
	var params yaml.Node
	params.Kind = yaml.MappingNode
	var correlated []correlatedGroup

	for _, b := range s.Blocks() {
		if mv, ok := b.Dist.(*dist.Multivariate); ok {
			correlated = append(correlated, renderCorrelated(b, mv))
			continue
		}
		text, err := Render(b.Dist)
		if err != nil {
			return fmt.Errorf("write corpus: constraint on %v: %w", b.Names, err)
		}
		params.Content = append(params.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: b.Names[0]},
			&yaml.Node{Kind: yaml.ScalarNode, Value: text},
		)
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(corpusDoc{Parameters: params, Correlated: correlated}); err != nil {
		return fmt.Errorf("write corpus: %w", err)
	}
	return nil
}

// renderCorrelated turns a multivariate block back into the correlated
// group shape: per-parameter "central ± sigma" strings plus the full
// correlation matrix.
func renderCorrelated(b *Block, mv *dist.Multivariate) correlatedGroup {
	n := mv.Dim()
	central := mv.Central()
	cov := mv.Covariance()
	g := correlatedGroup{}
	for i := 0; i < n; i++ {
		g.Values = append(g.Values, map[string]string{
			b.Names[i]: fmt.Sprintf("%s ± %s", formatFloat(central[i]), formatFloat(mv.Sigma(i))),
		})
	}
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			si, sj := mv.Sigma(i), mv.Sigma(j)
			if si == 0 || sj == 0 {
				if i == j {
					rows[i][j] = 1
				}
				continue
			}
			rows[i][j] = cov.At(i, j) / (si * sj)
		}
	}
	_ = g.Correlation.Encode(rows)
	return g
}

// ReadYAML loads a combined corpus document written by WriteYAML into the
// store, registering any unknown parameters on the way.
func ReadYAML(r io.Reader, s *Store) error {
	var doc corpusDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}
	if doc.Parameters.Kind == yaml.MappingNode {
		for i := 0; i < len(doc.Parameters.Content); i += 2 {
			name := doc.Parameters.Content[i].Value
			if !s.Registry().Has(name) {
				if _, err := s.Registry().Register(name, 0); err != nil {
					return fmt.Errorf("read corpus: %w", err)
				}
			}
			if err := s.SetConstraint(name, doc.Parameters.Content[i+1].Value); err != nil {
				return fmt.Errorf("read corpus: %w", err)
			}
		}
	}
	if len(doc.Correlated) > 0 {
		for _, g := range doc.Correlated {
			for _, entry := range g.Values {
				for name := range entry {
					if !s.Registry().Has(name) {
						if _, err := s.Registry().Register(name, 0); err != nil {
							return fmt.Errorf("read corpus: %w", err)
						}
					}
				}
			}
		}
		data, err := yaml.Marshal(doc.Correlated)
		if err != nil {
			return fmt.Errorf("read corpus: %w", err)
		}
		if err := LoadCorrelated(bytes.NewReader(data), s); err != nil {
			return fmt.Errorf("read corpus: %w", err)
		}
	}
	return nil
}

func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}
