package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"fedlocal/internal/common"
)

// Linear is a softmax-regression classifier: log_softmax(W·x + b), with
// optional inverted dropout on the inputs while training.
type Linear struct {
	numClasses int
	inputSize  int
	dropout    float64

	weight *Parameter
	bias   *Parameter

	training bool
	rng      *rand.Rand

	lastX        *mat.Dense
	lastLogProbs *mat.Dense
}

// NewLinear constructs the model with small random weights and zero bias.
// Non-positive sizes fall back to 10 classes and 64 inputs; a dropout rate
// outside [0, 1) disables dropout.
func NewLinear(numClasses, inputSize int, dropout float64, seed int64) *Linear {
	if numClasses <= 0 {
		numClasses = 10
	}
	if inputSize <= 0 {
		inputSize = 64
	}
	if dropout < 0 || dropout >= 1 {
		dropout = 0
	}
	rng := rand.New(rand.NewSource(seed))
	weight := NewParameter("weight", numClasses*inputSize)
	for i := range weight.Value {
		weight.Value[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return &Linear{
		numClasses: numClasses,
		inputSize:  inputSize,
		dropout:    dropout,
		weight:     weight,
		bias:       NewParameter("bias", numClasses),
		training:   true,
		rng:        rng,
	}
}

func (m *Linear) NumClasses() int { return m.numClasses }
func (m *Linear) InputSize() int  { return m.inputSize }

func (m *Linear) Parameters() []*Parameter { return []*Parameter{m.weight, m.bias} }

func (m *Linear) SetTraining(training bool) { m.training = training }
func (m *Linear) Training() bool            { return m.training }

func (m *Linear) Forward(inputs [][]float64) ([][]float64, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", common.ErrInvalidArgument)
	}
	x := mat.NewDense(len(inputs), m.inputSize, nil)
	for i, in := range inputs {
		if len(in) != m.inputSize {
			return nil, fmt.Errorf("%w: sample %d has %d features, want %d", common.ErrInvalidArgument, i, len(in), m.inputSize)
		}
		x.SetRow(i, in)
	}
	if m.training && m.dropout > 0 {
		keep := 1 - m.dropout
		x.Apply(func(_, _ int, v float64) float64 {
			if m.rng.Float64() < m.dropout {
				return 0
			}
			return v / keep
		}, x)
	}

	w := mat.NewDense(m.numClasses, m.inputSize, m.weight.Value)
	logProbs := mat.NewDense(len(inputs), m.numClasses, nil)
	logProbs.Mul(x, w.T())

	out := make([][]float64, len(inputs))
	for i := range out {
		row := logProbs.RawRowView(i)
		floats.Add(row, m.bias.Value)
		floats.AddConst(-floats.LogSumExp(row), row)
		out[i] = append([]float64(nil), row...)
	}

	m.lastX = x
	m.lastLogProbs = logProbs
	return out, nil
}

func (m *Linear) Backward(gradOut [][]float64) error {
	if m.lastX == nil {
		return fmt.Errorf("%w: backward called before forward", common.ErrInvalidArgument)
	}
	rows, _ := m.lastLogProbs.Dims()
	if len(gradOut) != rows {
		return fmt.Errorf("%w: gradient has %d rows, forward had %d", common.ErrInvalidArgument, len(gradOut), rows)
	}

	// d/dz of log_softmax: g - softmax(z) * sum(g)
	dz := mat.NewDense(rows, m.numClasses, nil)
	for i, g := range gradOut {
		if len(g) != m.numClasses {
			return fmt.Errorf("%w: gradient row %d has %d classes, want %d", common.ErrInvalidArgument, i, len(g), m.numClasses)
		}
		total := floats.Sum(g)
		logp := m.lastLogProbs.RawRowView(i)
		row := dz.RawRowView(i)
		for k := range row {
			row[k] = g[k] - math.Exp(logp[k])*total
		}
		floats.Add(m.bias.Grad, row)
	}

	var dw mat.Dense
	dw.Mul(dz.T(), m.lastX)
	gw := mat.NewDense(m.numClasses, m.inputSize, m.weight.Grad)
	gw.Add(gw, &dw)
	return nil
}
