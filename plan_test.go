package zarr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanChunks(t *testing.T) {
	require.Equal(t, []int{8192}, PlanChunks([]int{10000}, DefaultChunkSize))
	require.Equal(t, []int{100, 3}, PlanChunks([]int{100, 3}, DefaultChunkSize))
	require.Equal(t, []int{8192, 4, 5}, PlanChunks([]int{20000, 4, 5}, DefaultChunkSize))
	require.Nil(t, PlanChunks([]int{0, 3}, DefaultChunkSize))
	require.Nil(t, PlanChunks([]int{5, 0}, DefaultChunkSize))
	require.Empty(t, PlanChunks([]int{}, DefaultChunkSize))
}

func TestPlanDistributedChunks(t *testing.T) {
	// A participant with no rows plans on the global extent like the others.
	require.Equal(t, []int{10, 2}, PlanDistributedChunks([]int{0, 2}, 10, DefaultChunkSize))
	require.Equal(t, []int{8192, 2}, PlanDistributedChunks([]int{4000, 2}, 12000, DefaultChunkSize))
	require.Nil(t, PlanDistributedChunks([]int{0, 2}, 0, DefaultChunkSize))
}

func TestClampChunks(t *testing.T) {
	require.Equal(t, []int{10, 3}, ClampChunks([]int{64, 3}, []int{10, 3}))
	require.Equal(t, []int{1, 2}, ClampChunks([]int{0, 2}, []int{10, 3}))
	require.Nil(t, ClampChunks([]int{4}, []int{10, 3}))
	require.Nil(t, ClampChunks([]int{4, 4}, []int{0, 3}))
}

func TestCompressionFor(t *testing.T) {
	zstd := CompressionConfig{Enabled: true, Codec: CompressorZstd, Level: 5, Shuffle: true}

	comp, filters := CompressionFor([]int{8192}, zstd, 4)
	require.Equal(t, &CompressorConfig{ID: CompressorZstd, Level: 5}, comp)
	require.Equal(t, []FilterConfig{{ID: FilterShuffle, ElementSize: 4}}, filters)

	// Nothing to compress without chunks.
	comp, filters = CompressionFor(nil, zstd, 4)
	require.Nil(t, comp)
	require.Nil(t, filters)

	// Shuffling single bytes is a no-op and is left out.
	_, filters = CompressionFor([]int{8}, zstd, 1)
	require.Empty(t, filters)

	comp, filters = CompressionFor([]int{8}, CompressionConfig{Checksum: true}, 8)
	require.Nil(t, comp)
	require.Equal(t, []FilterConfig{{ID: FilterChecksum}}, filters)

	comp, _ = CompressionFor([]int{8}, CompressionConfig{Enabled: true, Codec: CompressorLZ4, Level: 9}, 8)
	require.Equal(t, &CompressorConfig{ID: CompressorLZ4}, comp)
}

func TestArrayMetadata(t *testing.T) {
	c := DefaultConfig().Compression

	meta, err := arrayMetadata(Float64, []int{10000}, PlanChunks([]int{10000}, DefaultChunkSize), c, nil)
	require.NoError(t, err)
	require.Equal(t, []int{8192}, meta.Chunks)
	require.NotNil(t, meta.Compressor)
	require.Equal(t, "<f8", meta.DType)
	require.NoError(t, meta.validate())

	meta, err = arrayMetadata(Int32, []int{0, 4}, nil, c, 1.0)
	require.NoError(t, err)
	require.Equal(t, []int{0, 4}, meta.Chunks)
	require.Nil(t, meta.Compressor)
	require.Equal(t, 1.0, meta.FillValue)
	require.NoError(t, meta.validate())

	_, err = arrayMetadata(DType("<x4"), []int{1}, []int{1}, c, nil)
	require.Error(t, err)
}
