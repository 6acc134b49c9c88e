package zarr

import (
	"strconv"
	"strings"
)

// GridShape calculates the number of chunks in each dimension.
// For each dimension i, the number of chunks is ceil(shape[i] / chunks[i]).
// A zero-length dimension has no chunks.
func GridShape(shape, chunks []int) []int {
	if len(shape) == 0 || len(chunks) == 0 {
		return []int{} // 0D scalar
	}
	grid := make([]int, len(shape))
	for i := range shape {
		if shape[i] == 0 || chunks[i] == 0 {
			grid[i] = 0
			continue
		}
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey generates the key for a chunk given its indices and a separator.
// For Zarr V2, the separator is typically ".".
// Example: indices=[1, 4], separator="." -> "1.4"
// For 0D arrays (empty indices), it returns "0" per the Zarr spec.
func ChunkKey(indices []int, separator string) string {
	if len(indices) == 0 {
		return "0"
	}

	if len(indices) == 1 {
		return strconv.Itoa(indices[0])
	}

	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteString(separator)
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}

// numElements returns the product of shape; 1 for a scalar.
func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// strides computes the C-order strides for a given shape.
func strides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	s := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

// chunkSpan returns the chunk index range [lo, hi) covering [start, start+count)
// in each dimension.
func chunkSpan(start, count, chunks []int) (lo, hi []int) {
	lo = make([]int, len(start))
	hi = make([]int, len(start))
	for i := range start {
		lo[i] = start[i] / chunks[i]
		hi[i] = (start[i]+count[i]-1)/chunks[i] + 1
	}
	return lo, hi
}

// iterateSubGrid iterates from start (inclusive) to end (exclusive) in each dimension.
func iterateSubGrid(start, end []int, fn func(indices []int) error) error {
	if len(start) == 0 {
		return fn([]int{})
	}
	for i := range start {
		if start[i] >= end[i] {
			return nil
		}
	}
	indices := make([]int, len(start))
	copy(indices, start)

	for {
		if err := fn(indices); err != nil {
			return err
		}

		i := len(start) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < end[i] {
				break
			}
			indices[i] = start[i]
		}
		if i < 0 {
			return nil
		}
	}
}

// overlap is the intersection of a request region with one chunk, expressed
// as offsets into the chunk and into the request buffer.
type overlap struct {
	shape     []int
	chunkOff  []int
	regionOff []int
	full      bool // the request covers every in-bounds element of the chunk
}

// chunkOverlap intersects chunk coords with the region (start, count) of an
// array with the given shape and chunk shape.
func chunkOverlap(coords, start, count, shape, chunks []int) (overlap, bool) {
	ov := overlap{
		shape:     make([]int, len(coords)),
		chunkOff:  make([]int, len(coords)),
		regionOff: make([]int, len(coords)),
		full:      true,
	}
	for i := range coords {
		chunkStart := coords[i] * chunks[i]
		chunkEnd := min(chunkStart+chunks[i], shape[i])

		lo := max(chunkStart, start[i])
		hi := min(chunkEnd, start[i]+count[i])
		if lo >= hi {
			return overlap{}, false
		}
		ov.shape[i] = hi - lo
		ov.chunkOff[i] = lo - chunkStart
		ov.regionOff[i] = lo - start[i]
		if ov.shape[i] != chunkEnd-chunkStart {
			ov.full = false
		}
	}
	return ov, true
}

// copyND recursively copies n-dimensional data from src to dst.
func copyND(
	dst []byte, dstStrides, dstOffset []int,
	src []byte, srcStrides, srcOffset []int,
	copyShape []int, itemSize int,
) {
	if len(copyShape) == 0 {
		// 0D scalar array: exactly one element
		copy(dst[:itemSize], src[:itemSize])
		return
	}

	startSrcIdx := 0
	startDstIdx := 0
	for i := range copyShape {
		startSrcIdx += srcOffset[i] * srcStrides[i]
		startDstIdx += dstOffset[i] * dstStrides[i]
	}

	var iterate func(dim int, currentSrcIdx, currentDstIdx int)
	iterate = func(dim int, currentSrcIdx, currentDstIdx int) {
		// Bulk copy for the innermost contiguous dimension
		if dim == len(copyShape)-1 {
			n := copyShape[dim]
			byteLen := n * itemSize
			srcStart := currentSrcIdx * itemSize
			dstStart := currentDstIdx * itemSize
			copy(dst[dstStart:dstStart+byteLen], src[srcStart:srcStart+byteLen])
			return
		}

		for i := 0; i < copyShape[dim]; i++ {
			iterate(dim+1, currentSrcIdx+i*srcStrides[dim], currentDstIdx+i*dstStrides[dim])
		}
	}
	iterate(0, startSrcIdx, startDstIdx)
}
