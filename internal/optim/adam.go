package optim

import (
	"fmt"
	"math"

	"fedlocal/internal/common"
	"fedlocal/internal/model"
)

// AdamSpec configures Adam. Zero Beta1, Beta2 and Eps take the standard
// defaults 0.9, 0.999 and 1e-8.
type AdamSpec struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Eps          float64
	WeightDecay  float64
}

func (AdamSpec) Kind() Kind { return KindAdam }

func (s AdamSpec) validate() error {
	if err := checkRate("learning rate", s.LearningRate, true); err != nil {
		return err
	}
	if err := checkRate("weight decay", s.WeightDecay, false); err != nil {
		return err
	}
	for _, b := range []struct {
		name string
		v    float64
	}{{"beta1", s.Beta1}, {"beta2", s.Beta2}} {
		if err := checkRate(b.name, b.v, false); err != nil {
			return err
		}
		if b.v >= 1 {
			return fmt.Errorf("%w: %s must be < 1 (got %g)", common.ErrInvalidArgument, b.name, b.v)
		}
	}
	return checkRate("eps", s.Eps, false)
}

func (s AdamSpec) build(params []*model.Parameter) Optimizer {
	if s.Beta1 == 0 {
		s.Beta1 = 0.9
	}
	if s.Beta2 == 0 {
		s.Beta2 = 0.999
	}
	if s.Eps == 0 {
		s.Eps = 1e-8
	}
	a := &Adam{spec: s, params: params}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Value))
		a.v[i] = make([]float64, len(p.Value))
	}
	return a
}

// Adam implements the Adam optimizer with bias correction and L2 weight
// decay folded into the gradient.
//
// Update rule:
//
//	g = g + λ·w
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	m̂ = m / (1 - β1^t)
//	v̂ = v / (1 - β2^t)
//	w = w - lr · m̂ / (√v̂ + ε)
type Adam struct {
	spec   AdamSpec
	params []*model.Parameter
	m, v   [][]float64
	step   int
}

func (a *Adam) ZeroGrad()   { zeroGrads(a.params) }
func (a *Adam) LR() float64 { return a.spec.LearningRate }
func (a *Adam) Kind() Kind  { return KindAdam }

func (a *Adam) Step() {
	a.step++
	bc1 := 1 - math.Pow(a.spec.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.spec.Beta2, float64(a.step))

	for pi, p := range a.params {
		m, v := a.m[pi], a.v[pi]
		for i, g := range p.Grad {
			g += a.spec.WeightDecay * p.Value[i]
			m[i] = a.spec.Beta1*m[i] + (1-a.spec.Beta1)*g
			v[i] = a.spec.Beta2*v[i] + (1-a.spec.Beta2)*g*g

			mHat := m[i] / bc1
			vHat := v[i] / bc2
			p.Value[i] -= a.spec.LearningRate * mHat / (math.Sqrt(vHat) + a.spec.Eps)
		}
	}
}
