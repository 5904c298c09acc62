// Uncertainty-string grammar. Constraint files and the override API share
// one canonical syntax for attaching a distribution to a parameter:
//
//	4.18                      fixed value (zero spread)
//	0.1185 ± 0.0012           symmetric Gaussian ("+-" is accepted for ±)
//	0.1185(12)                compact symmetric form, error in last digits
//	5.28 +0.03 -0.05          asymmetric Gaussian
//	2.0 */ 1.5                multiplicative: 1-sigma range [c/1.5, c*1.5]
//	[0.5, 2.0]                flat range
//	(3.62 ± 0.14) e-3         any of the above with a trailing power-of-ten
//	                          multiplier (e-3, 1e-3 and 10^-3 are synonyms)
//
// Several whitespace-separated error terms on one central value are
// independent systematic contributions and combine in quadrature. Each
// variant has its own parser arm; nothing here sniffs types at evaluation
// time.
package constraint

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"flavkit/internal/dist"
)

// Spec is a parsed uncertainty string, still in syntactic form.
type Spec struct {
	Central float64
	// Sym holds symmetric 1-sigma contributions.
	Sym []float64
	// Asym holds {right, left} deviation pairs, positive magnitudes.
	Asym [][2]float64
	// Factor is the multiplicative uncertainty factor, 0 when absent.
	Factor float64
	// Flat marks a flat range; Central is the midpoint and FlatMin/FlatMax
	// hold the bounds.
	Flat    bool
	FlatMin float64
	FlatMax float64
}

var (
	multiplierRe = regexp.MustCompile(`^(?:(?:1e)|(?:e)|(?:10\^))([+-]?\d+)$`)
	compactRe    = regexp.MustCompile(`^([+-]?\d*\.?\d+)\((\d+)\)$`)
	flatRe       = regexp.MustCompile(`^\[\s*([^,\s]+)\s*,\s*([^,\s\]]+)\s*\]$`)
	parenRe      = regexp.MustCompile(`^\((.+)\)\s*(\S+)?$`)
)

// ParseSpec parses one uncertainty string.
func ParseSpec(s string) (*Spec, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return nil, fmt.Errorf("parse %q: empty constraint string", s)
	}

	if m := flatRe.FindStringSubmatch(text); m != nil {
		lo, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: bad lower bound: %w", s, err)
		}
		hi, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: bad upper bound: %w", s, err)
		}
		if !(lo < hi) {
			return nil, fmt.Errorf("parse %q: flat range needs lower < upper", s)
		}
		return &Spec{Central: (lo + hi) / 2, Flat: true, FlatMin: lo, FlatMax: hi}, nil
	}

	multiplier := 1.0
	if m := parenRe.FindStringSubmatch(text); m != nil {
		text = m[1]
		if m[2] != "" {
			f, err := parseMultiplier(m[2])
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", s, err)
			}
			multiplier = f
		}
	} else {
		// A bare trailing multiplier token is allowed without parentheses.
		fields := strings.Fields(text)
		if len(fields) > 1 {
			if f, err := parseMultiplier(fields[len(fields)-1]); err == nil {
				multiplier = f
				text = strings.Join(fields[:len(fields)-1], " ")
			}
		}
	}

	spec, err := parseInner(text)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	spec.scale(multiplier)
	return spec, nil
}

// parseMultiplier interprets the trailing power-of-ten token.
func parseMultiplier(tok string) (float64, error) {
	m := multiplierRe.FindStringSubmatch(tok)
	if m == nil {
		return 0, fmt.Errorf("%q is not a power-of-ten multiplier", tok)
	}
	exp, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("bad multiplier exponent %q: %w", m[1], err)
	}
	return math.Pow(10, float64(exp)), nil
}

// parseInner parses "central term term ..." with ± glued or spaced.
func parseInner(text string) (*Spec, error) {
	text = strings.ReplaceAll(text, "±", " ± ")
	text = strings.ReplaceAll(text, "+-", " ± ")
	text = strings.ReplaceAll(text, "*/", " */ ")
	toks := strings.Fields(text)
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty constraint string")
	}

	spec := &Spec{}
	if m := compactRe.FindStringSubmatch(toks[0]); m != nil {
		c, sigma, err := parseCompact(m[1], m[2])
		if err != nil {
			return nil, err
		}
		spec.Central = c
		spec.Sym = append(spec.Sym, sigma)
	} else {
		c, err := strconv.ParseFloat(toks[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad central value %q: %w", toks[0], err)
		}
		spec.Central = c
	}

	i := 1
	for i < len(toks) {
		switch tok := toks[i]; {
		case tok == "±":
			if i+1 >= len(toks) {
				return nil, fmt.Errorf("dangling ± with no error value")
			}
			v, err := strconv.ParseFloat(toks[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("bad symmetric error %q: %w", toks[i+1], err)
			}
			if v <= 0 {
				return nil, fmt.Errorf("symmetric error must be positive, got %v", v)
			}
			spec.Sym = append(spec.Sym, v)
			i += 2
		case tok == "*/":
			if spec.Factor != 0 {
				return nil, fmt.Errorf("more than one */ factor")
			}
			if i+1 >= len(toks) {
				return nil, fmt.Errorf("dangling */ with no factor")
			}
			f, err := strconv.ParseFloat(toks[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("bad */ factor %q: %w", toks[i+1], err)
			}
			if f <= 1 {
				return nil, fmt.Errorf("*/ factor must exceed 1, got %v", f)
			}
			spec.Factor = f
			i += 2
		case strings.HasPrefix(tok, "+"):
			if i+1 >= len(toks) || !strings.HasPrefix(toks[i+1], "-") {
				return nil, fmt.Errorf("asymmetric +%s needs a matching -error", tok[1:])
			}
			right, err := strconv.ParseFloat(tok[1:], 64)
			if err != nil {
				return nil, fmt.Errorf("bad upper deviation %q: %w", tok, err)
			}
			left, err := strconv.ParseFloat(toks[i+1][1:], 64)
			if err != nil {
				return nil, fmt.Errorf("bad lower deviation %q: %w", toks[i+1], err)
			}
			if right < 0 || left < 0 || (right == 0 && left == 0) {
				return nil, fmt.Errorf("bad asymmetric deviations +%v -%v", right, left)
			}
			spec.Asym = append(spec.Asym, [2]float64{right, left})
			i += 2
		default:
			return nil, fmt.Errorf("unexpected token %q", tok)
		}
	}
	if spec.Factor != 0 && (len(spec.Sym) > 0 || len(spec.Asym) > 0) {
		return nil, fmt.Errorf("*/ factor cannot be combined with additive errors")
	}
	return spec, nil
}

// parseCompact expands PDG-style "0.1185(12)": the parenthesized digits
// are the symmetric error on the last digits of the central value.
func parseCompact(central, digits string) (float64, float64, error) {
	c, err := strconv.ParseFloat(central, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad central value %q: %w", central, err)
	}
	e, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad compact error %q: %w", digits, err)
	}
	decimals := 0
	if dot := strings.IndexByte(central, '.'); dot >= 0 {
		decimals = len(central) - dot - 1
	}
	return c, e * math.Pow(10, -float64(decimals)), nil
}

// scale applies a power-of-ten multiplier to the central value and every
// error contribution.
func (sp *Spec) scale(f float64) {
	if f == 1 {
		return
	}
	sp.Central *= f
	for i := range sp.Sym {
		sp.Sym[i] *= f
	}
	for i := range sp.Asym {
		sp.Asym[i][0] *= f
		sp.Asym[i][1] *= f
	}
	if sp.Flat {
		sp.FlatMin *= f
		sp.FlatMax *= f
	}
}

// Distribution lowers the parsed spec to a concrete distribution.
// Independent contributions are combined in quadrature per side.
func (sp *Spec) Distribution() (dist.Distribution, error) {
	switch {
	case sp.Flat:
		return dist.NewUniform(sp.FlatMin, sp.FlatMax)
	case sp.Factor != 0:
		right := sp.Central*sp.Factor - sp.Central
		left := sp.Central - sp.Central/sp.Factor
		if right <= 0 || left <= 0 {
			return nil, fmt.Errorf("multiplicative constraint needs a positive central value, got %v", sp.Central)
		}
		return dist.NewAsymmetricNormal(sp.Central, right, left)
	case len(sp.Asym) == 0 && len(sp.Sym) == 0:
		return &dist.Delta{Value: sp.Central}, nil
	case len(sp.Asym) == 0:
		return dist.NewNormal(sp.Central, quadrature(sp.Sym))
	default:
		var right, left []float64
		right = append(right, sp.Sym...)
		left = append(left, sp.Sym...)
		for _, a := range sp.Asym {
			right = append(right, a[0])
			left = append(left, a[1])
		}
		r, l := quadrature(right), quadrature(left)
		switch {
		case r == l:
			return dist.NewNormal(sp.Central, r)
		case r == 0:
			// one-sided downward
			return dist.NewHalfNormal(sp.Central, -l)
		case l == 0:
			return dist.NewHalfNormal(sp.Central, r)
		default:
			return dist.NewAsymmetricNormal(sp.Central, r, l)
		}
	}
}

func quadrature(errs []float64) float64 {
	var ss float64
	for _, e := range errs {
		ss += e * e
	}
	return math.Sqrt(ss)
}

// EffectiveSigma is the quadrature-combined symmetric width of the parsed
// constraint, used when a correlated group quotes per-parameter errors as
// strings.
func (sp *Spec) EffectiveSigma() float64 {
	var ss float64
	for _, e := range sp.Sym {
		ss += e * e
	}
	for _, a := range sp.Asym {
		// Geometric combination of the two sides; an asymmetric error
		// enters a covariance through this single width.
		ss += a[0] * a[1]
	}
	if sp.Factor != 0 {
		right := sp.Central*sp.Factor - sp.Central
		left := sp.Central - sp.Central/sp.Factor
		ss += right * left
	}
	if sp.Flat {
		half := (sp.FlatMax - sp.FlatMin) / 2
		ss += half * half / 3
	}
	return math.Sqrt(ss)
}

// Render serializes a scalar distribution back to the canonical string
// form. Parsing the result yields an equivalent distribution (same central
// value and 1-sigma interval).
func Render(d dist.Distribution) (string, error) {
	switch v := d.(type) {
	case *dist.Delta:
		return formatFloat(v.Value), nil
	case *dist.Normal:
		return fmt.Sprintf("%s ± %s", formatFloat(v.Mu), formatFloat(v.Sigma)), nil
	case *dist.AsymmetricNormal:
		return fmt.Sprintf("%s +%s -%s", formatFloat(v.Mu), formatFloat(v.SigmaRight), formatFloat(v.SigmaLeft)), nil
	case *dist.HalfNormal:
		if v.Sigma > 0 {
			return fmt.Sprintf("%s +%s -0", formatFloat(v.Mu), formatFloat(v.Sigma)), nil
		}
		return fmt.Sprintf("%s +0 -%s", formatFloat(v.Mu), formatFloat(-v.Sigma)), nil
	case *dist.Uniform:
		return fmt.Sprintf("[%s, %s]", formatFloat(v.Min), formatFloat(v.Max)), nil
	default:
		return "", fmt.Errorf("no string form for %T (correlated constraints live in the correlated file section)", d)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
