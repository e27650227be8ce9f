package optim

import "fedlocal/internal/model"

// SGDSpec configures stochastic gradient descent with optional momentum
// and L2 weight decay.
type SGDSpec struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
}

func (SGDSpec) Kind() Kind { return KindSGD }

func (s SGDSpec) validate() error {
	if err := checkRate("learning rate", s.LearningRate, true); err != nil {
		return err
	}
	if err := checkRate("momentum", s.Momentum, false); err != nil {
		return err
	}
	return checkRate("weight decay", s.WeightDecay, false)
}

func (s SGDSpec) build(params []*model.Parameter) Optimizer {
	return &SGD{spec: s, params: params}
}

// SGD implements momentum SGD.
//
// Update rule:
//
//	d = g + λ·w
//	b = μ·b + d        (b = d on the first step)
//	w = w - lr·b
type SGD struct {
	spec   SGDSpec
	params []*model.Parameter
	buf    [][]float64
}

func (o *SGD) ZeroGrad()   { zeroGrads(o.params) }
func (o *SGD) LR() float64 { return o.spec.LearningRate }
func (o *SGD) Kind() Kind  { return KindSGD }

func (o *SGD) Step() {
	first := false
	if o.spec.Momentum != 0 && o.buf == nil {
		o.buf = make([][]float64, len(o.params))
		for i, p := range o.params {
			o.buf[i] = make([]float64, len(p.Value))
		}
		first = true
	}
	for pi, p := range o.params {
		for i, g := range p.Grad {
			d := g + o.spec.WeightDecay*p.Value[i]
			if o.spec.Momentum != 0 {
				if first {
					o.buf[pi][i] = d
				} else {
					o.buf[pi][i] = o.spec.Momentum*o.buf[pi][i] + d
				}
				d = o.buf[pi][i]
			}
			p.Value[i] -= o.spec.LearningRate * d
		}
	}
}
