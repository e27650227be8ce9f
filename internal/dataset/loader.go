package dataset

import (
	"fmt"
	"math/rand"

	"fedlocal/internal/common"
)

// Batch represents a minibatch of features and labels.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int { return len(b.Labels) }

// Loader iterates a Dataset in fixed-size batches. The last batch may be
// short. With shuffle enabled every pass draws a fresh permutation from a
// seeded source, so runs with the same seed see the same batch order.
type Loader struct {
	ds        Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader returns a loader over ds.
func NewLoader(ds Dataset, batchSize int, shuffle bool, seed int64) (*Loader, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: nil dataset", common.ErrInvalidArgument)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be > 0 (got %d)", common.ErrInvalidArgument, batchSize)
	}
	l := &Loader{ds: ds, batchSize: batchSize, shuffle: shuffle}
	if shuffle {
		l.rng = rand.New(rand.NewSource(seed))
	}
	return l, nil
}

// Len returns the number of samples behind the loader.
func (l *Loader) Len() int { return l.ds.Len() }

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// NumBatches returns ceil(Len / BatchSize).
func (l *Loader) NumBatches() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Each calls fn for every batch of one pass. Iteration stops at the first
// error returned by fn or by the dataset.
func (l *Loader) Each(fn func(batchIdx int, b Batch) error) error {
	order := l.order()
	for batchIdx, start := 0, 0; start < len(order); batchIdx, start = batchIdx+1, start+l.batchSize {
		end := start + l.batchSize
		if end > len(order) {
			end = len(order)
		}
		batch := Batch{
			Inputs: make([][]float64, 0, end-start),
			Labels: make([]int, 0, end-start),
		}
		for _, i := range order[start:end] {
			s, err := l.ds.Item(i)
			if err != nil {
				return fmt.Errorf("load item %d: %w", i, err)
			}
			batch.Inputs = append(batch.Inputs, s.Input)
			batch.Labels = append(batch.Labels, s.Label)
		}
		if err := fn(batchIdx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) order() []int {
	order := make([]int, l.ds.Len())
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order
}
