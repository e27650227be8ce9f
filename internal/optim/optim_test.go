package optim

import (
	"errors"
	"math"
	"testing"

	"fedlocal/internal/common"
	"fedlocal/internal/model"
)

func assertFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %.12f, want %.12f", name, got, want)
	}
}

func param(value, grad float64) *model.Parameter {
	return &model.Parameter{Name: "w", Value: []float64{value}, Grad: []float64{grad}}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{"sgd": KindSGD, "SGD": KindSGD, " adam ": KindAdam}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("rmsprop"); !errors.Is(err, common.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if KindAdam.String() != "adam" || KindSGD.String() != "sgd" {
		t.Fatalf("unexpected kind names %s %s", KindSGD, KindAdam)
	}
}

func TestNewRejectsInvalidSpecs(t *testing.T) {
	specs := []Spec{
		nil,
		SGDSpec{LearningRate: 0},
		SGDSpec{LearningRate: -1},
		SGDSpec{LearningRate: 0.1, Momentum: -0.5},
		AdamSpec{LearningRate: math.NaN()},
		AdamSpec{LearningRate: 0.1, Beta1: 1},
		AdamSpec{LearningRate: 0.1, WeightDecay: -1},
	}
	for i, spec := range specs {
		if _, err := New(spec, nil); !errors.Is(err, common.ErrInvalidArgument) {
			t.Errorf("spec %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestSGDPlainStep(t *testing.T) {
	p := param(1.0, 2.0)
	opt, err := New(SGDSpec{LearningRate: 0.1}, []*model.Parameter{p})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	opt.Step()
	assertFloat(t, "w", p.Value[0], 0.8)
}

func TestSGDMomentum(t *testing.T) {
	p := param(1.0, 1.0)
	opt, _ := New(SGDSpec{LearningRate: 0.1, Momentum: 0.5}, []*model.Parameter{p})
	opt.Step() // buf = 1
	assertFloat(t, "step 1", p.Value[0], 0.9)
	opt.Step() // buf = 0.5 + 1 = 1.5
	assertFloat(t, "step 2", p.Value[0], 0.75)
}

func TestSGDWeightDecay(t *testing.T) {
	p := param(2.0, 0.0)
	opt, _ := New(SGDSpec{LearningRate: 0.1, WeightDecay: 0.5}, []*model.Parameter{p})
	opt.Step()
	assertFloat(t, "w", p.Value[0], 1.9)
}

func TestZeroGrad(t *testing.T) {
	p := param(1.0, 3.0)
	for _, spec := range []Spec{SGDSpec{LearningRate: 0.1}, AdamSpec{LearningRate: 0.1}} {
		p.Grad[0] = 3
		opt, _ := New(spec, []*model.Parameter{p})
		opt.ZeroGrad()
		if p.Grad[0] != 0 {
			t.Fatalf("%s: ZeroGrad left %f", spec.Kind(), p.Grad[0])
		}
	}
}

func TestAdamBiasCorrection(t *testing.T) {
	// At step 1 m̂ = g and v̂ = g², so the step is lr·sign(g).
	p := param(5.0, 1.0)
	opt, _ := New(AdamSpec{LearningRate: 0.04}, []*model.Parameter{p})
	opt.Step()
	assertFloat(t, "bias correction step", 5.0-p.Value[0], 0.04)
}

func TestAdamDirection(t *testing.T) {
	pos := param(1.0, 2.0)
	neg := param(1.0, -2.0)
	opt, _ := New(AdamSpec{LearningRate: 0.01, WeightDecay: 1e-4}, []*model.Parameter{pos, neg})
	opt.Step()
	if pos.Value[0] >= 1.0 {
		t.Errorf("positive gradient should decrease w, got %f", pos.Value[0])
	}
	if neg.Value[0] <= 1.0 {
		t.Errorf("negative gradient should increase w, got %f", neg.Value[0])
	}
}

func TestLRAndKind(t *testing.T) {
	opt, _ := New(AdamSpec{LearningRate: 0.01}, nil)
	assertFloat(t, "lr", opt.LR(), 0.01)
	if opt.Kind() != KindAdam {
		t.Fatalf("kind = %s", opt.Kind())
	}
}
