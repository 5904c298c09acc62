package observable

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestRegisterAndEvaluate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("identity(alpha_s)", 0, func(par map[string]float64, kin ...float64) (float64, error) {
		return par["alpha_s"], nil
	})
	got, err := r.Evaluate("identity(alpha_s)", map[string]float64{"alpha_s": 0.1185})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0.1185 {
		t.Fatalf("unexpected value: %v", got)
	}
}

func TestUndefinedObservable(t *testing.T) {
	r := NewRegistry()
	_, err := r.Evaluate("nope", nil)
	if !errors.Is(err, ErrUndefinedObservable) {
		t.Fatalf("expected ErrUndefinedObservable, got %v", err)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	fn := func(par map[string]float64, kin ...float64) (float64, error) { return 0, nil }
	r.MustRegister("x", 0, fn)
	if _, err := r.Register("x", 0, fn); !errors.Is(err, ErrDuplicateObservable) {
		t.Fatalf("expected ErrDuplicateObservable, got %v", err)
	}
}

func TestArityEnforced(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("dBR/dq2", 1, func(par map[string]float64, kin ...float64) (float64, error) {
		return kin[0] * par["scale"], nil
	})
	if _, err := r.Evaluate("dBR/dq2", map[string]float64{"scale": 2}); !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity for missing argument, got %v", err)
	}
	if _, err := r.Evaluate("dBR/dq2", map[string]float64{"scale": 2}, 1.0, 2.0); !errors.Is(err, ErrArity) {
		t.Fatalf("expected ErrArity for extra argument, got %v", err)
	}
	got, err := r.Evaluate("dBR/dq2", map[string]float64{"scale": 2}, 3.5)
	if err != nil || got != 7 {
		t.Fatalf("evaluate: got %v, %v", got, err)
	}
}

func TestEvaluationIsDeterministic(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("ratio", 0, func(par map[string]float64, kin ...float64) (float64, error) {
		return math.Exp(par["a"]) / math.Sqrt(par["b"]), nil
	})
	par := map[string]float64{"a": 0.3, "b": 2.7}
	first, err := r.Evaluate("ratio", par)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Evaluate("ratio", par)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("evaluation not bit-identical: %v vs %v", again, first)
		}
	}
}

func TestDomainErrorCarriesObservableName(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("sqrt_s", 0, func(par map[string]float64, kin ...float64) (float64, error) {
		if par["s"] < 0 {
			return 0, fmt.Errorf("s=%v outside physical phase space", par["s"])
		}
		return math.Sqrt(par["s"]), nil
	})
	_, err := r.Evaluate("sqrt_s", map[string]float64{"s": -1})
	if err == nil || !strings.Contains(err.Error(), "sqrt_s") {
		t.Fatalf("error must name the observable: %v", err)
	}
}
