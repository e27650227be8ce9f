package model

import (
	"fmt"

	"fedlocal/internal/common"
)

// Parameter is a named, flat tensor of trainable values with its
// accumulated gradient. Grad always has the same length as Value.
type Parameter struct {
	Name  string
	Value []float64
	Grad  []float64
}

// NewParameter allocates a zeroed parameter of size n.
func NewParameter(name string, n int) *Parameter {
	return &Parameter{Name: name, Value: make([]float64, n), Grad: make([]float64, n)}
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Model is the trainable capability the local trainer drives.
//
// Forward maps a batch of inputs to per-class log-probabilities.
// Backward takes the gradient of the loss with respect to the last
// Forward's output and accumulates parameter gradients into Grad.
// The training flag only changes stochastic layers such as dropout.
type Model interface {
	Forward(inputs [][]float64) ([][]float64, error)
	Backward(gradOut [][]float64) error
	Parameters() []*Parameter
	SetTraining(training bool)
	Training() bool
}

// State is a parameter snapshot keyed by parameter name.
type State map[string][]float64

// Snapshot deep-copies the current parameter values of m.
func Snapshot(m Model) State {
	params := m.Parameters()
	s := make(State, len(params))
	for _, p := range params {
		s[p.Name] = append([]float64(nil), p.Value...)
	}
	return s
}

// Load overwrites the parameters of m with s. Every parameter must be
// present with a matching size; nothing is written on mismatch.
func Load(m Model, s State) error {
	params := m.Parameters()
	for _, p := range params {
		v, ok := s[p.Name]
		if !ok {
			return fmt.Errorf("%w: state missing parameter %q", common.ErrInvalidArgument, p.Name)
		}
		if len(v) != len(p.Value) {
			return fmt.Errorf("%w: parameter %q has %d values, state has %d", common.ErrInvalidArgument, p.Name, len(p.Value), len(v))
		}
	}
	for _, p := range params {
		copy(p.Value, s[p.Name])
	}
	return nil
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

// Equal reports whether s and other hold identical values.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		w, ok := other[k]
		if !ok || len(v) != len(w) {
			return false
		}
		for i := range v {
			if v[i] != w[i] {
				return false
			}
		}
	}
	return true
}
