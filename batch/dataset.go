// Package batch reads arrays of a Zarr hierarchy in sequential batches
// along their outermost axis, as gomlx tensors.
package batch

import (
	"context"
	"fmt"
	"io"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/x448/float16"

	zarr "github.com/TuSKan/go-zarr"
)

// Dataset handles reading Zarr arrays in batches.
type Dataset struct {
	file  *zarr.File
	owned bool
	path  string
	shape []int
	dtype zarr.DType

	CurrentIndex int
}

// NewDataset opens the hierarchy at url and the array at path inside it.
func NewDataset(ctx context.Context, url, path string, opts ...zarr.FileOption) (*Dataset, error) {
	f, err := zarr.Append(ctx, url, append(opts, zarr.ReturnErrors())...)
	if err != nil {
		return nil, fmt.Errorf("failed to open hierarchy: %w", err)
	}
	ds, err := Open(ctx, f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	ds.owned = true
	return ds, nil
}

// Open reads batches of the array at path of an open file.
func Open(ctx context.Context, f *zarr.File, path string) (*Dataset, error) {
	chain, err := f.Resolve(ctx, path, zarr.KindArray)
	if err != nil {
		return nil, fmt.Errorf("failed to open array %q: %w", path, err)
	}
	defer chain.Close()

	a := chain.Leaf().(*zarr.Array)
	if len(a.Shape()) == 0 {
		return nil, fmt.Errorf("%w: cannot batch scalar array %q", zarr.ErrShapeMismatch, path)
	}
	return &Dataset{file: f, path: path, shape: a.Shape(), dtype: a.DType()}, nil
}

// Shape returns the extent of the whole array.
func (d *Dataset) Shape() []int { return append([]int(nil), d.shape...) }

// Reset rewinds the dataset to its first row.
func (d *Dataset) Reset() { d.CurrentIndex = 0 }

// Close closes the file when the dataset opened it.
func (d *Dataset) Close() error {
	if d.owned {
		return d.file.Close()
	}
	return nil
}

// NextBatch reads the next batch of size batchSize.
// Returns io.EOF if there is no more data.
func (d *Dataset) NextBatch(ctx context.Context, batchSize int) (*tensors.Tensor, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if d.CurrentIndex >= d.shape[0] {
		return nil, io.EOF
	}

	start := make([]int, len(d.shape))
	start[0] = d.CurrentIndex
	batchShape := d.Shape()
	batchShape[0] = min(batchSize, d.shape[0]-d.CurrentIndex)

	t, err := d.read(ctx, start, batchShape)
	if err != nil {
		return nil, err
	}
	d.CurrentIndex += batchShape[0]
	return t, nil
}

func (d *Dataset) read(ctx context.Context, start, shape []int) (*tensors.Tensor, error) {
	switch d.dtype {
	case zarr.Float32:
		v, err := zarr.ReadDatasetRegion[float32](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Float64:
		v, err := zarr.ReadDatasetRegion[float64](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Float16:
		v, err := zarr.ReadDatasetRegion[float16.Float16](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Int8:
		v, err := zarr.ReadDatasetRegion[int8](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Int16:
		v, err := zarr.ReadDatasetRegion[int16](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Int32:
		v, err := zarr.ReadDatasetRegion[int32](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Int64:
		v, err := zarr.ReadDatasetRegion[int64](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Uint8:
		v, err := zarr.ReadDatasetRegion[uint8](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Uint16:
		v, err := zarr.ReadDatasetRegion[uint16](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Uint32:
		v, err := zarr.ReadDatasetRegion[uint32](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	case zarr.Uint64:
		v, err := zarr.ReadDatasetRegion[uint64](ctx, d.file, d.path, start, shape)
		return tensorOf(v, shape, err)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", d.dtype)
	}
}

func tensorOf[T float16.Float16 | float32 | float64 | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64](data []T, shape []int, err error) (*tensors.Tensor, error) {
	if err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(data, shape...), nil
}
