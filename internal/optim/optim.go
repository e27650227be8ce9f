// Package optim implements the optimizers used for local training.
//
// An optimizer is selected by a tagged [Spec] variant: [SGDSpec] or
// [AdamSpec], each carrying only its own hyperparameters. [New] binds a
// spec to a model's parameters:
//
//	opt, err := optim.New(optim.SGDSpec{LearningRate: 0.01, Momentum: 0.5}, m.Parameters())
//	opt.ZeroGrad()
//	// forward, loss, backward
//	opt.Step()
package optim

import (
	"fmt"
	"math"
	"strings"

	"fedlocal/internal/common"
	"fedlocal/internal/model"
)

// Kind names an optimizer family.
type Kind int

const (
	KindSGD Kind = iota + 1
	KindAdam
)

func (k Kind) String() string {
	switch k {
	case KindSGD:
		return "sgd"
	case KindAdam:
		return "adam"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps "sgd" or "adam" (case-insensitive) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sgd":
		return KindSGD, nil
	case "adam":
		return KindAdam, nil
	default:
		return 0, fmt.Errorf("%w: unknown optimizer %q", common.ErrInvalidArgument, s)
	}
}

// Optimizer updates a fixed set of parameters from their gradients.
type Optimizer interface {
	// ZeroGrad clears the accumulated gradients of every bound parameter.
	ZeroGrad()
	// Step applies one update using the current gradients.
	Step()
	LR() float64
	Kind() Kind
}

// Spec is the per-kind optimizer configuration.
type Spec interface {
	Kind() Kind
	validate() error
	build(params []*model.Parameter) Optimizer
}

// New validates spec and binds it to params.
func New(spec Spec, params []*model.Parameter) (Optimizer, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil optimizer spec", common.ErrInvalidArgument)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return spec.build(params), nil
}

func checkRate(name string, v float64, positive bool) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a finite value >= 0 (got %g)", common.ErrInvalidArgument, name, v)
	}
	if positive && v == 0 {
		return fmt.Errorf("%w: %s must be > 0", common.ErrInvalidArgument, name)
	}
	return nil
}

func zeroGrads(params []*model.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
