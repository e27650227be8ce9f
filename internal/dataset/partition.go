package dataset

// Partitions holds the train/validation/test views of one client's shard.
type Partitions struct {
	Train      *View
	Validation *View
	Test       *View
}

// SplitBounds returns the end offsets of the train and validation ranges
// for a shard of n samples: floor(0.8n) and floor(0.9n).
func SplitBounds(n int) (trainEnd, valEnd int) {
	return n * 8 / 10, n * 9 / 10
}

// Split cuts idxs into an 80/10/10 prefix split without reordering.
// Any randomization of which samples land where must happen upstream.
// Empty partitions are allowed here and rejected when trained or evaluated.
func Split(ds Dataset, idxs []int) (Partitions, error) {
	trainEnd, valEnd := SplitBounds(len(idxs))

	train, err := NewView(ds, idxs[:trainEnd])
	if err != nil {
		return Partitions{}, err
	}
	val, err := NewView(ds, idxs[trainEnd:valEnd])
	if err != nil {
		return Partitions{}, err
	}
	test, err := NewView(ds, idxs[valEnd:])
	if err != nil {
		return Partitions{}, err
	}
	return Partitions{Train: train, Validation: val, Test: test}, nil
}

// EvalBatchSize is the batch size used for validation and test partitions:
// a tenth of the partition, at least one.
func EvalBatchSize(size int) int {
	if bs := size / 10; bs > 0 {
		return bs
	}
	return 1
}
