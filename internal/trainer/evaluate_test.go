package trainer

import (
	"errors"
	"math"
	"testing"

	"fedlocal/internal/common"
	"fedlocal/internal/dataset"
	"fedlocal/internal/model"
)

// oracle reads the label from the first feature. With perfect set it puts
// almost all mass on that label; otherwise it predicts uniformly.
type oracle struct {
	classes  int
	perfect  bool
	training bool
	forwards int
}

func (o *oracle) Forward(inputs [][]float64) ([][]float64, error) {
	o.forwards++
	out := make([][]float64, len(inputs))
	for i, in := range inputs {
		row := make([]float64, o.classes)
		for k := range row {
			row[k] = math.Log(1 / float64(o.classes))
		}
		if o.perfect {
			for k := range row {
				row[k] = math.Log(1e-6)
			}
			row[int(in[0])] = math.Log(1 - float64(o.classes-1)*1e-6)
		}
		out[i] = row
	}
	return out, nil
}

func (o *oracle) Backward([][]float64) error     { return nil }
func (o *oracle) Parameters() []*model.Parameter { return nil }
func (o *oracle) SetTraining(training bool)      { o.training = training }
func (o *oracle) Training() bool                 { return o.training }

func labelDataset(t *testing.T, n, classes int) *dataset.InMemory {
	t.Helper()
	inputs := make([][]float64, n)
	labels := make([]int, n)
	for i := range inputs {
		labels[i] = i % classes
		inputs[i] = []float64{float64(labels[i])}
	}
	ds, err := dataset.NewInMemory(inputs, labels)
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	return ds
}

func TestInferencePerfectModel(t *testing.T) {
	ds := labelDataset(t, 100, 3)
	u, err := NewLocalUpdate(sgdConfig(1, 10), ds, seqIndices(100), nil, nil)
	if err != nil {
		t.Fatalf("NewLocalUpdate: %v", err)
	}
	m := &oracle{classes: 3, perfect: true, training: true}
	res, err := u.Inference(m)
	if err != nil {
		t.Fatalf("Inference: %v", err)
	}
	if res.Accuracy != 1.0 || res.Correct != 10 || res.Total != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
	if m.training {
		t.Fatalf("evaluation left the model in training mode")
	}
	// test partition of 10 uses batch size max(1, 10/10) = 1
	if res.Batches != 10 {
		t.Fatalf("expected 10 batches, got %d", res.Batches)
	}
}

func TestEvaluationLossIsSummedOverBatches(t *testing.T) {
	ds := labelDataset(t, 300, 4)
	u, _ := NewLocalUpdate(sgdConfig(1, 10), ds, seqIndices(300), nil, nil)
	res, err := u.Validate(&oracle{classes: 4})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	// validation partition has 30 samples, batch size 3, 10 batches, each
	// with mean loss ln(4); the reported loss is the sum, not the mean.
	if res.Batches != 10 {
		t.Fatalf("expected 10 batches, got %d", res.Batches)
	}
	if math.Abs(res.Loss-10*math.Log(4)) > 1e-9 {
		t.Fatalf("loss %f, want %f", res.Loss, 10*math.Log(4))
	}
}

func TestAccuracyWithinUnitInterval(t *testing.T) {
	ds := dataset.Blobs(120, testClasses, testDims, 1.0, 4)
	u, _ := NewLocalUpdate(sgdConfig(1, 10), ds, seqIndices(120), nil, nil)
	for seed := int64(0); seed < 5; seed++ {
		res, err := u.Inference(model.NewLinear(testClasses, testDims, 0, seed))
		if err != nil {
			t.Fatalf("Inference: %v", err)
		}
		if res.Accuracy < 0 || res.Accuracy > 1 {
			t.Fatalf("accuracy %f outside [0, 1]", res.Accuracy)
		}
	}
}

func TestEvaluateEmptyPartition(t *testing.T) {
	ds := labelDataset(t, 20, 2)
	// 5 samples: train 4, validation 0, test 1
	u, err := NewLocalUpdate(sgdConfig(1, 2), ds, []int{0, 1, 2, 3, 4}, nil, nil)
	if err != nil {
		t.Fatalf("NewLocalUpdate: %v", err)
	}
	m := &oracle{classes: 2}
	if _, err := u.Validate(m); !errors.Is(err, common.ErrEmptyPartition) {
		t.Fatalf("expected ErrEmptyPartition, got %v", err)
	}
	if m.forwards != 0 {
		t.Fatalf("empty partition ran %d forward passes", m.forwards)
	}
	if _, err := u.Inference(m); err != nil {
		t.Fatalf("single-sample test partition should evaluate: %v", err)
	}

	empty, _ := dataset.NewInMemory(nil, nil)
	if _, err := GlobalInference(m, empty); !errors.Is(err, common.ErrEmptyPartition) {
		t.Fatalf("expected ErrEmptyPartition, got %v", err)
	}
}

func TestGlobalInferenceBatches(t *testing.T) {
	ds := labelDataset(t, 1000, 5)
	m := &oracle{classes: 5, perfect: true}
	res, err := GlobalInference(m, ds)
	if err != nil {
		t.Fatalf("GlobalInference: %v", err)
	}
	if res.Batches != 8 || m.forwards != 8 {
		t.Fatalf("expected 8 batches, got %d (%d forwards)", res.Batches, m.forwards)
	}
	if res.Total != 1000 || res.Accuracy != 1.0 {
		t.Fatalf("unexpected result %+v", res)
	}
}
