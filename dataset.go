package zarr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// lifecycle holds the handles of one dataset write.
type lifecycle struct {
	dataset   *Array
	fileSpace *Dataspace
	memSpace  *Dataspace
	transfer  *Transfer
}

// release closes the transfer, the memory dataspace (when it is not the
// file dataspace), the file dataspace and the dataset, in that order.
func (l *lifecycle) release() error {
	var errs []error
	if l.transfer != nil {
		errs = append(errs, l.transfer.Close())
	}
	if l.memSpace != nil && l.memSpace != l.fileSpace {
		errs = append(errs, l.memSpace.Close())
	}
	if l.fileSpace != nil {
		errs = append(errs, l.fileSpace.Close())
	}
	if l.dataset != nil {
		errs = append(errs, l.dataset.Close())
	}
	return errors.Join(errs...)
}

// WriteDataset creates the dataset name and writes data into it.
//
// Without options, dims is the shape of data and of the dataset. When the
// file has a process group of more than one participant and distribution is
// enabled, dims is this participant's slab: the leading extents of all
// participants are summed into the dataset's leading extent and each slab
// is written at its rank's offset. WithHyperslab instead writes data, of
// shape count, into the region start/count of a dataset of extent dims.
//
// Slabs are always split along the first dimension, the same axis the
// Distributed setting names; the other extents must agree across the group.
//
// Every participant of the group must call WriteDataset, including those
// whose slab is empty.
func WriteDataset[T Element](ctx context.Context, f *File, name string, dims []int, data []T, opts ...WriteOption) error {
	path := CleanPath(name)
	raw, err := encodeElements(data)
	if err != nil {
		return f.check("write dataset", path, ioError("write dataset", path, err))
	}
	err = f.writeDataset(ctx, path, TypeOf[T](), dims, raw, f.writeOptions(opts))
	return f.check("write dataset", path, err)
}

func (f *File) writeDataset(ctx context.Context, path string, dtype DType, dims []int, raw []byte, o *writeOptions) (err error) {
	if f.closed {
		return ErrClosed
	}
	var lc lifecycle
	defer func() {
		if rerr := lc.release(); err == nil && rerr != nil {
			err = ioError("release", path, rerr)
		}
	}()

	for i, d := range dims {
		if d < 0 {
			return fmt.Errorf("%w: negative extent %d at dimension %d", ErrShapeMismatch, d, i)
		}
	}
	hyperslab := o.start != nil || o.count != nil
	distributed := o.distributed && !hyperslab && f.group.Size() > 1 && len(dims) > 0

	global := dims
	sel := Selection{Mode: SelectAll}
	var chunks []int
	switch {
	case hyperslab:
		sel = Selection{Mode: SelectHyperslab, Start: o.start, Count: o.count}
		chunks = PlanChunks(global, f.config.ChunkSize)
	case distributed:
		ext, err := ResolveExtent(ctx, f.group, dims, distributedAxis)
		if err != nil {
			return ioError("resolve extent of", path, err)
		}
		global = ext.Global
		sel = Selection{Mode: SelectDistributed, Local: dims, Offset: ext.Offset}
		chunks = PlanDistributedChunks(dims, ext.Global[0], f.config.ChunkSize)
		f.logger.V(1).Info("resolved distributed extent", "path", path, "global", ext.Global, "offset", ext.Offset, "table", ext.Table)
	default:
		chunks = PlanChunks(global, f.config.ChunkSize)
	}
	if chunks, err = explicitChunks(o.chunks, chunks, global); err != nil {
		return ioError("create dataset", path, err)
	}

	meta, err := arrayMetadata(dtype, global, chunks, o.compression, o.fillValue)
	if err != nil {
		return ioError("create dataset", path, err)
	}
	f.logger.V(1).Info("planned dataset", "path", path, "shape", meta.Shape, "chunks", chunks, "compressor", meta.Compressor)

	lc.fileSpace = f.newDataspace(path, global)
	if lc.dataset, err = f.createArray(ctx, path, meta); err != nil {
		return err
	}
	if lc.memSpace, err = f.selectRegion(lc.fileSpace, sel); err != nil {
		return ioError("select region of", path, err)
	}
	return f.transferRegion(ctx, &lc, raw, transferMode(o.collective))
}

// distributedAxis is the dimension along which participants' slabs are
// concatenated.
const distributedAxis = 0

// explicitChunks applies caller-supplied chunk dimensions over the planned
// ones. They must have one entry per dimension of extent.
func explicitChunks(explicit, planned, extent []int) ([]int, error) {
	if explicit == nil {
		return planned, nil
	}
	if len(explicit) != len(extent) {
		return nil, fmt.Errorf("%w: %d chunk dimensions for a %d-dimensional dataset", ErrShapeMismatch, len(explicit), len(extent))
	}
	if planned == nil {
		return nil, nil
	}
	return ClampChunks(explicit, extent), nil
}

// transferRegion configures the transfer and writes, or skips, this
// participant's region.
func (f *File) transferRegion(ctx context.Context, lc *lifecycle, raw []byte, mode TransferMode) error {
	path := lc.dataset.path
	mem := lc.memSpace.Region()
	if want := mem.Len() * lc.dataset.itemSize; len(raw) != want {
		return ioError("write dataset", path, fmt.Errorf("%w: %d bytes given for memory region %v (%d bytes)", ErrShapeMismatch, len(raw), mem.Count, want))
	}

	var write bool
	lc.transfer, write = f.configureTransfer(lc.memSpace, mode)
	if !write {
		f.logger.V(1).Info("skipping empty write", "path", path, "rank", f.group.Rank(), "mode", mode)
	}
	file := lc.fileSpace.Region()
	f.logger.V(1).Info("transferring region", "path", path, "rank", f.group.Rank(), "mode", mode, "start", file.Start, "count", file.Count)
	part := func(set chunkSet) func(context.Context) error {
		return func(ctx context.Context) error {
			return lc.dataset.writeChunks(ctx, file.Start, file.Count, raw, set)
		}
	}
	err := lc.transfer.run(ctx, f.group, part(ownedChunks), part(sharedChunks))
	return ioError("write dataset", path, err)
}

// WriteToDataset writes data, of shape count, into the region start/count
// of the existing dataset name. A nil start and count write the whole
// dataset. In a process group every participant must call it, passing an
// empty count when it has nothing to write.
func WriteToDataset[T Element](ctx context.Context, f *File, name string, data []T, start, count []int, opts ...WriteOption) error {
	path := CleanPath(name)
	raw, err := encodeElements(data)
	if err != nil {
		return f.check("write to dataset", path, ioError("write to dataset", path, err))
	}
	err = f.writeToDataset(ctx, path, TypeOf[T](), raw, start, count, f.writeOptions(opts))
	return f.check("write to dataset", path, err)
}

func (f *File) writeToDataset(ctx context.Context, path string, dtype DType, raw []byte, start, count []int, o *writeOptions) (err error) {
	chain, err := f.Resolve(ctx, path, KindArray)
	if err != nil {
		return err
	}
	defer chain.Close()
	opened := chain.Leaf().(*Array)
	if opened.dtype != dtype {
		return ioError("write to dataset", path, fmt.Errorf("%w: dataset holds %s, data is %s", ErrShapeMismatch, opened.dtype, dtype))
	}

	var lc lifecycle
	defer func() {
		if rerr := lc.release(); err == nil && rerr != nil {
			err = ioError("release", path, rerr)
		}
	}()
	// The lifecycle owns its own dataset handle so it can release it in order.
	if lc.dataset, err = f.newArray(path, opened.meta); err != nil {
		return err
	}
	lc.fileSpace = f.newDataspace(path, opened.meta.Shape)
	sel := Selection{Mode: SelectAll}
	if start != nil || count != nil {
		sel = Selection{Mode: SelectHyperslab, Start: start, Count: count}
	}
	if lc.memSpace, err = f.selectRegion(lc.fileSpace, sel); err != nil {
		return ioError("select region of", path, err)
	}
	return f.transferRegion(ctx, &lc, raw, transferMode(o.collective))
}

// CreateDataset creates an empty dataset of extent dims and returns it
// open. Chunks and compression are planned as for WriteDataset. Every
// participant of the group must call it.
func CreateDataset(ctx context.Context, f *File, name string, dtype DType, dims []int, opts ...WriteOption) (*Array, error) {
	path := CleanPath(name)
	o := f.writeOptions(opts)
	chunks, err := explicitChunks(o.chunks, PlanChunks(dims, f.config.ChunkSize), dims)
	if err != nil {
		return nil, f.check("create dataset", path, ioError("create dataset", path, err))
	}
	meta, err := arrayMetadata(dtype, dims, chunks, o.compression, o.fillValue)
	if err != nil {
		return nil, f.check("create dataset", path, ioError("create dataset", path, err))
	}
	a, err := f.createArray(ctx, path, meta)
	return a, f.check("create dataset", path, err)
}

// WriteStringDataset creates the dataset name holding the bytes of data as
// a one-dimensional array of single characters. Distributed writes
// concatenate the strings of all participants in rank order.
func WriteStringDataset(ctx context.Context, f *File, name, data string, opts ...WriteOption) error {
	path := CleanPath(name)
	err := f.writeDataset(ctx, path, Char, []int{len(data)}, []byte(data), f.writeOptions(opts))
	return f.check("write dataset", path, err)
}

// ReadStringDataset reads a character dataset as a string. Trailing
// unwritten characters are dropped.
func ReadStringDataset(ctx context.Context, f *File, path string) (string, error) {
	path = CleanPath(path)
	chain, err := f.Resolve(ctx, path, KindArray)
	if err != nil {
		return "", f.check("read dataset", path, err)
	}
	defer chain.Close()

	a := chain.Leaf().(*Array)
	if a.dtype != Char {
		return "", f.check("read dataset", path, fmt.Errorf("%w: dataset holds %s, requested %s", ErrShapeMismatch, a.dtype, Char))
	}
	raw, err := a.ReadFull(ctx)
	if err != nil {
		return "", f.check("read dataset", path, ioError("read dataset", path, err))
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

// ReadDataset reads the whole dataset at path and returns it with its shape.
func ReadDataset[T Element](ctx context.Context, f *File, path string) ([]T, []int, error) {
	var shape []int
	data, err := readDataset[T](ctx, f, path, func(a *Array) ([]byte, error) {
		shape = a.Shape()
		return a.ReadFull(ctx)
	})
	if err != nil {
		return nil, nil, err
	}
	return data, shape, nil
}

// ReadDatasetRegion reads the region start/count of the dataset at path.
func ReadDatasetRegion[T Element](ctx context.Context, f *File, path string, start, count []int) ([]T, error) {
	return readDataset[T](ctx, f, path, func(a *Array) ([]byte, error) {
		return a.ReadRegion(ctx, start, count)
	})
}

func readDataset[T Element](ctx context.Context, f *File, path string, read func(*Array) ([]byte, error)) ([]T, error) {
	path = CleanPath(path)
	chain, err := f.Resolve(ctx, path, KindArray)
	if err != nil {
		return nil, f.check("read dataset", path, err)
	}
	defer chain.Close()

	a := chain.Leaf().(*Array)
	if want := TypeOf[T](); a.dtype != want {
		return nil, f.check("read dataset", path, fmt.Errorf("%w: dataset holds %s, requested %s", ErrShapeMismatch, a.dtype, want))
	}
	raw, err := read(a)
	if err != nil {
		return nil, f.check("read dataset", path, ioError("read dataset", path, err))
	}
	out, err := decodeElements[T](raw)
	return out, f.check("read dataset", path, err)
}
