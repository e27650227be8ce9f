package dataset

import (
	"fmt"

	"fedlocal/internal/common"
)

// View is a read-only, index-remapped window over a base Dataset.
// Item i resolves to base.Item(indices[i]). The base is not owned.
type View struct {
	base    Dataset
	indices []int
}

// NewView validates indices against base and returns a view over them.
// The index slice is copied.
func NewView(base Dataset, indices []int) (*View, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: nil base dataset", common.ErrInvalidArgument)
	}
	n := base.Len()
	for pos, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: index %d at position %d outside [0, %d)", common.ErrInvalidArgument, idx, pos, n)
		}
	}
	return &View{base: base, indices: append([]int(nil), indices...)}, nil
}

func (v *View) Len() int { return len(v.indices) }

func (v *View) Item(i int) (Sample, error) {
	if i < 0 || i >= len(v.indices) {
		return Sample{}, fmt.Errorf("%w: view item %d of %d", common.ErrIndexOutOfRange, i, len(v.indices))
	}
	return v.base.Item(v.indices[i])
}

// Indices returns a copy of the base positions backing the view.
func (v *View) Indices() []int {
	return append([]int(nil), v.indices...)
}
