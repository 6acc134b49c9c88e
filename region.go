package zarr

import "fmt"

// Region is a hyperslab: a start corner and a count per dimension.
type Region struct {
	Start []int
	Count []int
}

// FullRegion returns the region covering the whole extent.
func FullRegion(extent []int) Region {
	return Region{Start: make([]int, len(extent)), Count: append([]int(nil), extent...)}
}

// Validate checks that the region lies inside extent.
func (r Region) Validate(extent []int) error {
	if len(r.Start) != len(extent) || len(r.Count) != len(extent) {
		return fmt.Errorf("%w: region of rank %d/%d on extent %v", ErrShapeMismatch, len(r.Start), len(r.Count), extent)
	}
	for i := range extent {
		if r.Start[i] < 0 || r.Count[i] < 0 || r.Start[i]+r.Count[i] > extent[i] {
			return fmt.Errorf("%w: region start %v count %v exceeds extent %v at dimension %d", ErrShapeMismatch, r.Start, r.Count, extent, i)
		}
	}
	return nil
}

// Empty reports whether the region selects no element.
func (r Region) Empty() bool {
	for _, c := range r.Count {
		if c == 0 {
			return true
		}
	}
	return false
}

// Len returns the number of selected elements.
func (r Region) Len() int { return numElements(r.Count) }

// SelectMode selects how the file region of a write is derived.
type SelectMode int

const (
	// SelectAll writes the whole dataset from a buffer of the same shape.
	SelectAll SelectMode = iota
	// SelectDistributed writes this participant's slab of a distributed
	// dataset, starting at its offset along the leading dimension.
	SelectDistributed
	// SelectHyperslab writes into a caller-supplied region.
	SelectHyperslab
)

// Selection describes the region a participant writes.
type Selection struct {
	Mode SelectMode
	// Local is the shape of the participant's buffer (SelectDistributed).
	Local []int
	// Offset is the participant's offset on the leading dimension
	// (SelectDistributed).
	Offset int
	// Start and Count are the file region (SelectHyperslab).
	Start, Count []int
}

// PlanRegion computes the file and memory regions of a write into a dataset
// of extent global. shared is true when the memory region is the file
// region itself and no selection is needed.
func PlanRegion(global []int, sel Selection) (file, mem Region, shared bool, err error) {
	switch sel.Mode {
	case SelectAll:
		file = FullRegion(global)
		return file, file, true, nil
	case SelectDistributed:
		if len(sel.Local) != len(global) || len(global) == 0 {
			return Region{}, Region{}, false, fmt.Errorf("%w: local extent %v on global extent %v", ErrShapeMismatch, sel.Local, global)
		}
		file = Region{Start: make([]int, len(global)), Count: append([]int(nil), sel.Local...)}
		file.Start[0] = sel.Offset
		mem = FullRegion(sel.Local)
	case SelectHyperslab:
		file = Region{Start: append([]int(nil), sel.Start...), Count: append([]int(nil), sel.Count...)}
		mem = FullRegion(sel.Count)
	default:
		return Region{}, Region{}, false, fmt.Errorf("unknown selection mode %d", sel.Mode)
	}
	if err := file.Validate(global); err != nil {
		return Region{}, Region{}, false, err
	}
	return file, mem, false, nil
}

// Dataspace is the extent of a dataset or buffer plus its selected region.
type Dataspace struct {
	handle
	extent []int
	region Region
}

func (d *Dataspace) Kind() Kind   { return KindDataspace }
func (d *Dataspace) Close() error { return d.release() }

// Extent returns the extent of the dataspace.
func (d *Dataspace) Extent() []int { return d.extent }

// Region returns the selected region; the whole extent when nothing was selected.
func (d *Dataspace) Region() Region { return d.region }

// SelectHyperslab restricts the dataspace to region r.
func (d *Dataspace) SelectHyperslab(r Region) error {
	if err := r.Validate(d.extent); err != nil {
		return err
	}
	d.region = r
	return nil
}

func (f *File) newDataspace(path string, extent []int) *Dataspace {
	return &Dataspace{handle: f.acquire(path), extent: append([]int(nil), extent...), region: FullRegion(extent)}
}

// selectRegion applies sel to the file dataspace and returns the memory
// dataspace, which is fileSpace itself when no selection applies.
func (f *File) selectRegion(fileSpace *Dataspace, sel Selection) (*Dataspace, error) {
	file, mem, shared, err := PlanRegion(fileSpace.extent, sel)
	if err != nil {
		return nil, err
	}
	if shared {
		return fileSpace, nil
	}
	if err := fileSpace.SelectHyperslab(file); err != nil {
		return nil, err
	}
	return f.newDataspace(fileSpace.path, mem.Count), nil
}
