package metrics

import (
	"sync"

	"github.com/google/btree"
)

type scalarItem struct {
	tag   string
	seq   uint64
	value float64
}

func (i scalarItem) Less(than btree.Item) bool {
	o := than.(scalarItem)
	if i.tag != o.tag {
		return i.tag < o.tag
	}
	return i.seq < o.seq
}

// Recorder keeps every scalar in memory, ordered by tag then arrival.
type Recorder struct {
	mu   sync.Mutex
	tree *btree.BTree
	seq  map[string]uint64
}

func NewRecorder() *Recorder {
	return &Recorder{tree: btree.New(16), seq: make(map[string]uint64)}
}

func (r *Recorder) AddScalar(tag string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.seq[tag]
	r.seq[tag] = seq + 1
	r.tree.ReplaceOrInsert(scalarItem{tag: tag, seq: seq, value: value})
}

// Series returns the values recorded under tag in arrival order.
func (r *Recorder) Series(tag string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	r.tree.AscendGreaterOrEqual(scalarItem{tag: tag}, func(i btree.Item) bool {
		item := i.(scalarItem)
		if item.tag != tag {
			return false
		}
		out = append(out, item.value)
		return true
	})
	return out
}

// Tags returns every tag seen so far in sorted order.
func (r *Recorder) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tags []string
	r.tree.Ascend(func(i btree.Item) bool {
		item := i.(scalarItem)
		if item.seq == 0 {
			tags = append(tags, item.tag)
		}
		return true
	})
	return tags
}

// Len returns the total number of recorded scalars.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.Len()
}
