package dataset

import (
	"fmt"
	"math/rand"

	"fedlocal/internal/common"
)

// Sample is a single (input, label) pair.
type Sample struct {
	Input []float64
	Label int
}

// Dataset is a fixed-size, randomly addressable collection of samples.
// Implementations must not change while a local update is running.
type Dataset interface {
	Len() int
	Item(i int) (Sample, error)
}

// InMemory is a Dataset backed by slices already resident in memory.
type InMemory struct {
	inputs [][]float64
	labels []int
}

// NewInMemory wraps inputs and labels. Both slices must have equal length.
func NewInMemory(inputs [][]float64, labels []int) (*InMemory, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("%w: %d inputs but %d labels", common.ErrInvalidArgument, len(inputs), len(labels))
	}
	return &InMemory{inputs: inputs, labels: labels}, nil
}

func (d *InMemory) Len() int { return len(d.inputs) }

func (d *InMemory) Item(i int) (Sample, error) {
	if i < 0 || i >= len(d.inputs) {
		return Sample{}, fmt.Errorf("%w: item %d of %d", common.ErrIndexOutOfRange, i, len(d.inputs))
	}
	return Sample{Input: d.inputs[i], Label: d.labels[i]}, nil
}

// Blobs generates n samples drawn from numClasses isotropic gaussian
// clusters in dims dimensions. Labels cycle through the classes so every
// class is represented when n >= numClasses.
func Blobs(n, numClasses, dims int, spread float64, seed int64) *InMemory {
	rng := rand.New(rand.NewSource(seed))
	centers := make([][]float64, numClasses)
	for c := range centers {
		centers[c] = make([]float64, dims)
		for j := range centers[c] {
			centers[c][j] = rng.Float64()*4 - 2
		}
	}
	inputs := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		label := i % numClasses
		x := make([]float64, dims)
		for j := range x {
			x[j] = centers[label][j] + rng.NormFloat64()*spread
		}
		inputs[i] = x
		labels[i] = label
	}
	return &InMemory{inputs: inputs, labels: labels}
}
