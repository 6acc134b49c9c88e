package zarr

// PlanChunks returns the chunk shape for an array of the given extent, or
// nil when the array must be stored unchunked because a dimension is zero.
// The outermost dimension is cut into chunks of at most target elements;
// every other dimension is kept whole.
func PlanChunks(extent []int, target int) []int {
	for _, d := range extent {
		if d == 0 {
			return nil
		}
	}
	chunks := append([]int(nil), extent...)
	if len(chunks) > 0 && target > 0 {
		chunks[0] = min(target, extent[0])
	}
	return chunks
}

// PlanDistributedChunks plans chunks for a participant's local extent once
// the leading extent of the whole distributed array is known. The planning
// uses the global leading extent, so a participant with no local rows still
// agrees with the others on the chunk shape.
func PlanDistributedChunks(local []int, globalLeading, target int) []int {
	if len(local) == 0 {
		return PlanChunks(local, target)
	}
	extent := append([]int(nil), local...)
	extent[0] = globalLeading
	return PlanChunks(extent, target)
}

// ClampChunks clamps caller-supplied chunk dimensions to the extent. It
// returns nil when the extent has a zero dimension or the ranks differ.
func ClampChunks(chunks, extent []int) []int {
	if len(chunks) != len(extent) {
		return nil
	}
	out := make([]int, len(extent))
	for i, d := range extent {
		if d == 0 {
			return nil
		}
		out[i] = max(1, min(chunks[i], d))
	}
	return out
}

// CompressionFor derives the compressor and filters for a chunk shape.
// Without chunks nothing can be compressed and both results are nil.
func CompressionFor(chunks []int, c CompressionConfig, itemSize int) (*CompressorConfig, []FilterConfig) {
	if chunks == nil {
		return nil, nil
	}
	var filters []FilterConfig
	if c.Enabled && c.Shuffle && itemSize > 1 {
		filters = append(filters, FilterConfig{ID: FilterShuffle, ElementSize: itemSize})
	}
	if c.Checksum {
		filters = append(filters, FilterConfig{ID: FilterChecksum})
	}
	if !c.Enabled {
		return nil, filters
	}
	comp := &CompressorConfig{ID: c.Codec}
	if c.Codec != CompressorLZ4 {
		comp.Level = c.Level
	}
	return comp, filters
}

// arrayMetadata assembles the .zarray for a new array. Unchunked arrays use
// the extent as their single chunk and are never compressed.
func arrayMetadata(dtype DType, extent, chunks []int, c CompressionConfig, fill interface{}) (*Metadata, error) {
	itemSize, err := dtype.ItemSize()
	if err != nil {
		return nil, err
	}
	comp, filters := CompressionFor(chunks, c, itemSize)
	stored := chunks
	if stored == nil {
		stored = append([]int{}, extent...)
	}
	if fill == nil {
		fill = 0
		if dtype == Char {
			fill = ""
		}
	}
	return &Metadata{
		ZarrFormat:         zarrFormat,
		Shape:              append([]int{}, extent...),
		Chunks:             stored,
		DType:              string(dtype),
		Compressor:         comp,
		Filters:            filters,
		FillValue:          fill,
		Order:              "C",
		DimensionSeparator: ".",
	}, nil
}
