package zarr

import (
	"context"
	"fmt"

	"github.com/TuSKan/go-zarr/pgroup"
)

// Extent is the outcome of reducing the local extents of all participants
// along the distributed axis.
type Extent struct {
	// Global is the extent of the whole array.
	Global []int
	// Offset is this participant's first index along the axis.
	Offset int
	// Table holds every participant's local extent along the axis, by rank.
	Table []int
}

// ResolveExtent gathers every participant's local extent and derives the
// global extent and this participant's offset along axis. Every participant
// must call it. The other dimensions must agree across participants; a
// mismatch is reported, not reconciled.
func ResolveExtent(ctx context.Context, g pgroup.Group, local []int, axis int) (Extent, error) {
	if axis < 0 || axis >= len(local) {
		return Extent{}, fmt.Errorf("%w: axis %d out of range for rank %d", ErrShapeMismatch, axis, len(local))
	}
	for i, d := range local {
		if d < 0 {
			return Extent{}, fmt.Errorf("%w: negative extent %d at dimension %d", ErrShapeMismatch, d, i)
		}
	}
	all, err := g.AllGather(ctx, local)
	if err != nil {
		return Extent{}, fmt.Errorf("failed to gather extents: %w", err)
	}

	ext := Extent{Global: append([]int(nil), local...), Table: make([]int, len(all))}
	ext.Global[axis] = 0
	for r, theirs := range all {
		if len(theirs) != len(local) {
			return Extent{}, fmt.Errorf("%w: rank %d has %d dimensions, rank %d has %d", ErrShapeMismatch, r, len(theirs), g.Rank(), len(local))
		}
		for i := range theirs {
			if i != axis && theirs[i] != local[i] {
				return Extent{}, fmt.Errorf("%w: rank %d has extent %v, rank %d has %v", ErrShapeMismatch, r, theirs, g.Rank(), local)
			}
		}
		ext.Table[r] = theirs[axis]
		ext.Global[axis] += theirs[axis]
		if r < g.Rank() {
			ext.Offset += theirs[axis]
		}
	}
	return ext, nil
}
