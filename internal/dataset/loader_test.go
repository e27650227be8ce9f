package dataset

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"fedlocal/internal/common"
)

func collectLabels(t *testing.T, l *Loader) ([]int, []int) {
	t.Helper()
	var labels, sizes []int
	err := l.Each(func(_ int, b Batch) error {
		labels = append(labels, b.Labels...)
		sizes = append(sizes, b.Len())
		return nil
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	return labels, sizes
}

func labelledDataset(n int) *InMemory {
	inputs := make([][]float64, n)
	labels := make([]int, n)
	for i := range inputs {
		inputs[i] = []float64{float64(i)}
		labels[i] = i
	}
	ds, _ := NewInMemory(inputs, labels)
	return ds
}

func TestLoaderSequentialBatches(t *testing.T) {
	l, err := NewLoader(labelledDataset(25), 10, false, 0)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if l.NumBatches() != 3 {
		t.Fatalf("expected 3 batches, got %d", l.NumBatches())
	}
	labels, sizes := collectLabels(t, l)
	if !reflect.DeepEqual(sizes, []int{10, 10, 5}) {
		t.Fatalf("batch sizes %v", sizes)
	}
	if !reflect.DeepEqual(labels, seqIndices(25)) {
		t.Fatalf("unshuffled loader reordered samples: %v", labels)
	}
}

func TestLoaderShufflePerPass(t *testing.T) {
	l, _ := NewLoader(labelledDataset(50), 7, true, 11)
	first, _ := collectLabels(t, l)
	second, _ := collectLabels(t, l)
	if reflect.DeepEqual(first, second) {
		t.Fatalf("expected a fresh permutation per pass")
	}
	sorted := append([]int(nil), first...)
	sort.Ints(sorted)
	if !reflect.DeepEqual(sorted, seqIndices(50)) {
		t.Fatalf("shuffled pass is not a permutation")
	}

	again, _ := NewLoader(labelledDataset(50), 7, true, 11)
	replay, _ := collectLabels(t, again)
	if !reflect.DeepEqual(first, replay) {
		t.Fatalf("same seed produced different order")
	}
}

func TestLoaderRejectsBadBatchSize(t *testing.T) {
	if _, err := NewLoader(labelledDataset(3), 0, false, 0); !errors.Is(err, common.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLoaderEmptyDataset(t *testing.T) {
	view, _ := NewView(labelledDataset(3), nil)
	l, _ := NewLoader(view, 4, true, 1)
	calls := 0
	if err := l.Each(func(int, Batch) error { calls++; return nil }); err != nil {
		t.Fatalf("Each: %v", err)
	}
	if calls != 0 || l.NumBatches() != 0 {
		t.Fatalf("expected no batches, got %d calls", calls)
	}
}

func TestLoaderStopsOnError(t *testing.T) {
	l, _ := NewLoader(labelledDataset(30), 10, false, 0)
	stop := errors.New("stop")
	calls := 0
	err := l.Each(func(int, Batch) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected single call and stop error, got %d calls err=%v", calls, err)
	}
}
