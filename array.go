package zarr

import (
	"context"
	"fmt"

	"gocloud.dev/gcerrors"
	"golang.org/x/sync/errgroup"
)

// Array is an open dataset.
type Array struct {
	handle
	meta     *Metadata
	dtype    DType
	itemSize int
	fill     []byte
}

func (a *Array) Kind() Kind   { return KindArray }
func (a *Array) Close() error { return a.release() }

// Metadata returns the .zarray content of the array.
func (a *Array) Metadata() *Metadata { return a.meta }

// Shape returns the extent of the array.
func (a *Array) Shape() []int { return append([]int(nil), a.meta.Shape...) }

// DType returns the element type tag of the array.
func (a *Array) DType() DType { return a.dtype }

// Chunked reports whether the array is stored in chunks. Arrays with a
// zero-length dimension are not.
func (a *Array) Chunked() bool {
	for _, d := range a.meta.Shape {
		if d == 0 {
			return false
		}
	}
	return true
}

func (f *File) openArray(ctx context.Context, path string) (*Array, error) {
	var meta Metadata
	if err := f.readJSON(ctx, storeKey(path, arrayKey), &meta); err != nil {
		return nil, ioError("open array", path, err)
	}
	if err := meta.validate(); err != nil {
		return nil, ioError("open array", path, err)
	}
	return f.newArray(path, &meta)
}

func (f *File) newArray(path string, meta *Metadata) (*Array, error) {
	dtype := DType(meta.DType)
	itemSize, err := dtype.ItemSize()
	if err != nil {
		return nil, ioError("open array", path, err)
	}
	fill, err := fillBytes(dtype, meta.FillValue)
	if err != nil {
		return nil, ioError("open array", path, err)
	}
	return &Array{
		handle:   f.acquire(path),
		meta:     meta,
		dtype:    dtype,
		itemSize: itemSize,
		fill:     fill,
	}, nil
}

// createArray writes the .zarray of a new array on rank 0 and opens it on
// every participant.
func (f *File) createArray(ctx context.Context, path string, meta *Metadata) (*Array, error) {
	err := f.onRoot(ctx, "create dataset", path, func() error {
		parent, _, err := splitParent(path)
		if err != nil {
			return err
		}
		kind, err := f.nodeKind(ctx, parent)
		if err != nil {
			return err
		}
		if kind != KindGroup {
			return fmt.Errorf("%w: parent group %q", ErrNotFound, parent)
		}
		if kind, err = f.nodeKind(ctx, path); err != nil {
			return err
		} else if kind != 0 {
			return fmt.Errorf("%w: %s %q", ErrAlreadyExists, kind, path)
		}
		return f.writeJSON(ctx, storeKey(path, arrayKey), meta)
	})
	if err != nil {
		return nil, err
	}
	return f.newArray(path, meta)
}

func (a *Array) chunkKey(coords []int) string {
	return storeKey(a.path, ChunkKey(coords, a.meta.separator()))
}

func (a *Array) chunkBytes() int {
	return numElements(a.meta.Chunks) * a.itemSize
}

func (a *Array) checkRegion(start, count []int) error {
	if len(start) != len(a.meta.Shape) || len(count) != len(a.meta.Shape) {
		return fmt.Errorf("%w: start and count must match array dimensionality %d", ErrShapeMismatch, len(a.meta.Shape))
	}
	return Region{Start: start, Count: count}.Validate(a.meta.Shape)
}

// ReadChunk reads a single chunk given its coordinates. A chunk that was
// never written reads as the fill value.
func (a *Array) ReadChunk(ctx context.Context, coords []int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	size := a.chunkBytes()
	key := a.chunkKey(coords)
	stored, err := a.file.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return a.fillChunk(size), nil
		}
		return nil, fmt.Errorf("failed to read chunk %s: %w", key, err)
	}
	data, err := decodeChunk(stored, a.meta, size)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chunk %s: %w", key, err)
	}
	return data, nil
}

func (a *Array) fillChunk(size int) []byte {
	buf := make([]byte, size)
	for i := 0; i+a.itemSize <= size; i += a.itemSize {
		copy(buf[i:], a.fill)
	}
	return buf
}

// ReadRegion reads the region (start, count) into a C-order byte buffer.
func (a *Array) ReadRegion(ctx context.Context, start, count []int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if err := a.checkRegion(start, count); err != nil {
		return nil, err
	}
	out := make([]byte, numElements(count)*a.itemSize)
	if len(out) == 0 {
		return out, nil
	}

	dstStrides := strides(count)
	chunkStrides := strides(a.meta.Chunks)
	lo, hi := chunkSpan(start, count, a.meta.Chunks)
	return out, iterateSubGrid(lo, hi, func(coords []int) error {
		ov, ok := chunkOverlap(coords, start, count, a.meta.Shape, a.meta.Chunks)
		if !ok {
			return nil
		}
		chunk, err := a.ReadChunk(ctx, coords)
		if err != nil {
			return err
		}
		copyND(out, dstStrides, ov.regionOff, chunk, chunkStrides, ov.chunkOff, ov.shape, a.itemSize)
		return nil
	})
}

// ReadFull reads the entire array.
func (a *Array) ReadFull(ctx context.Context) ([]byte, error) {
	return a.ReadRegion(ctx, make([]int, len(a.meta.Shape)), a.meta.Shape)
}

// chunkSet selects which of the chunks touched by a write are stored.
type chunkSet int

const (
	allChunks chunkSet = iota
	// ownedChunks are the chunks a region covers completely. No disjoint
	// region can touch them.
	ownedChunks
	// sharedChunks are the chunks a region covers in part. They are read,
	// merged and rewritten, so writers of disjoint regions that share one
	// must take turns.
	sharedChunks
)

func (s chunkSet) has(full bool) bool {
	switch s {
	case ownedChunks:
		return full
	case sharedChunks:
		return !full
	}
	return true
}

// WriteRegion stores data, a C-order buffer of shape count, into the region
// starting at start. Chunks only partly covered are read, merged and
// rewritten, so participants writing into a shared chunk must not do so
// at the same time.
func (a *Array) WriteRegion(ctx context.Context, start, count []int, data []byte) error {
	return a.writeChunks(ctx, start, count, data, allChunks)
}

func (a *Array) writeChunks(ctx context.Context, start, count []int, data []byte, set chunkSet) error {
	if a.closed {
		return ErrClosed
	}
	if err := a.checkRegion(start, count); err != nil {
		return err
	}
	if want := numElements(count) * a.itemSize; len(data) != want {
		return fmt.Errorf("%w: buffer has %d bytes, region %v needs %d", ErrShapeMismatch, len(data), count, want)
	}
	if len(data) == 0 {
		return nil
	}

	srcStrides := strides(count)
	chunkStrides := strides(a.meta.Chunks)
	size := a.chunkBytes()
	lo, hi := chunkSpan(start, count, a.meta.Chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.file.config.Concurrency)
	err := iterateSubGrid(lo, hi, func(indices []int) error {
		coords := append([]int(nil), indices...)
		ov, ok := chunkOverlap(coords, start, count, a.meta.Shape, a.meta.Chunks)
		if !ok || !set.has(ov.full) {
			return nil
		}
		g.Go(func() error {
			var chunk []byte
			if ov.full {
				chunk = a.fillChunk(size)
			} else {
				var err error
				if chunk, err = a.ReadChunk(gctx, coords); err != nil {
					return err
				}
			}
			copyND(chunk, chunkStrides, ov.chunkOff, data, srcStrides, ov.regionOff, ov.shape, a.itemSize)
			return a.storeChunk(gctx, coords, chunk)
		})
		return nil
	})
	if err != nil {
		g.Wait()
		return err
	}
	return g.Wait()
}

func (a *Array) storeChunk(ctx context.Context, coords []int, chunk []byte) error {
	key := a.chunkKey(coords)
	stored, err := encodeChunk(chunk, a.meta)
	if err != nil {
		return fmt.Errorf("failed to encode chunk %s: %w", key, err)
	}
	if err := a.file.bucket.WriteAll(ctx, key, stored, nil); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", key, err)
	}
	return nil
}
