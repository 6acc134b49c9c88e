package zarr

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// Reader reads a bucket whose root is a single array, such as a store
// written by another Zarr implementation. It needs no root group.
type Reader struct {
	file  *File
	array *Array
}

// NewReader opens the array stored at the root of the bucket at url.
func NewReader(ctx context.Context, url string, opts ...FileOption) (*Reader, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	f, err := newFile(bucket, append(opts, ReturnErrors()))
	if err != nil {
		bucket.Close()
		return nil, err
	}
	f.owned = true

	a, err := f.openArray(ctx, "")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return &Reader{file: f, array: a}, nil
}

// ReadFull reads the entire Zarr array into a flat byte slice.
func (r *Reader) ReadFull(ctx context.Context) ([]byte, error) {
	return r.array.ReadFull(ctx)
}

// ReadChunk reads a single chunk given its coordinates.
func (r *Reader) ReadChunk(ctx context.Context, coords []int) ([]byte, error) {
	return r.array.ReadChunk(ctx, coords)
}

// ReadRegion reads a subset of the array defined by start and shape.
func (r *Reader) ReadRegion(ctx context.Context, start, shape []int) ([]byte, error) {
	return r.array.ReadRegion(ctx, start, shape)
}

// Metadata returns the parsed .zarray metadata.
func (r *Reader) Metadata() *Metadata {
	return r.array.Metadata()
}

// Close releases the array and the underlying bucket.
func (r *Reader) Close() error {
	r.array.Close()
	return r.file.Close()
}
