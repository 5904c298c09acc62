package dist

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Uniform is a flat distribution over [Min, Max]. Draws never leave the
// support, so no clipping or resampling is needed downstream.
type Uniform struct {
	Min float64
	Max float64
}

// NewUniform returns a flat range constraint.
func NewUniform(min, max float64) (*Uniform, error) {
	if !(min < max) {
		return nil, fmt.Errorf("uniform: need min < max, got [%v, %v]", min, max)
	}
	return &Uniform{Min: min, Max: max}, nil
}

func (u *Uniform) Dim() int { return 1 }

func (u *Uniform) Central() []float64 { return []float64{(u.Min + u.Max) / 2} }

func (u *Uniform) Sample(rnd *rand.Rand) []float64 {
	d := distuv.Uniform{Min: u.Min, Max: u.Max, Src: rnd}
	return []float64{d.Rand()}
}

func (u *Uniform) LogPDF(x []float64) float64 {
	if x[0] < u.Min || x[0] > u.Max {
		return negInf
	}
	return -math.Log(u.Max - u.Min)
}

func (u *Uniform) Covariance() *mat.SymDense {
	halfRange := (u.Max - u.Min) / 2
	return symCov(halfRange * halfRange / 3)
}

func (u *Uniform) CentralValue() float64 { return (u.Min + u.Max) / 2 }

// ErrorLeft reports the flat half-range; together with ErrorRight it
// spans the support rather than a Gaussian interval.
func (u *Uniform) ErrorLeft() float64  { return (u.Max - u.Min) / 2 }
func (u *Uniform) ErrorRight() float64 { return (u.Max - u.Min) / 2 }
