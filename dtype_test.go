package zarr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestTypeOf(t *testing.T) {
	require.Equal(t, Int8, TypeOf[int8]())
	require.Equal(t, Uint16, TypeOf[uint16]())
	require.Equal(t, Int64, TypeOf[int64]())
	require.Equal(t, Float16, TypeOf[float16.Float16]())
	require.Equal(t, Float32, TypeOf[float32]())
	require.Equal(t, Float64, TypeOf[float64]())
}

func TestTypeFromName(t *testing.T) {
	require.Equal(t, Float32, TypeFromName("float32"))
	require.Equal(t, Uint64, TypeFromName("uint64"))
	require.Equal(t, Char, TypeFromName("string"))
	require.Equal(t, Char, TypeFromName(""))
}

func TestItemSize(t *testing.T) {
	for d, want := range map[DType]int{Int8: 1, Uint16: 2, Float16: 2, Int32: 4, Float64: 8, Char: 1} {
		got, err := d.ItemSize()
		require.NoError(t, err)
		require.Equal(t, want, got, string(d))
	}
}

func TestEncodeDecodeElements(t *testing.T) {
	raw, err := encodeElements([]int16{1, -2, 300})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0xfe, 0xff, 0x2c, 0x01}, raw)

	back, err := decodeElements[int16](raw)
	require.NoError(t, err)
	require.Equal(t, []int16{1, -2, 300}, back)

	halves := []float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2)}
	raw, err = encodeElements(halves)
	require.NoError(t, err)
	require.Len(t, raw, 4)
	gotHalves, err := decodeElements[float16.Float16](raw)
	require.NoError(t, err)
	require.Equal(t, halves, gotHalves)

	_, err = decodeElements[int32](make([]byte, 6))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFillBytes(t *testing.T) {
	b, err := fillBytes(Int32, 7.0)
	require.NoError(t, err)
	require.Equal(t, []byte{7, 0, 0, 0}, b)

	b, err = fillBytes(Float64, nil)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), b)

	b, err = fillBytes(Float32, -1.0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0x80, 0xbf}, b)

	b, err = fillBytes(Uint8, "NaN")
	require.NoError(t, err)
	require.Equal(t, []byte{0}, b)

	b, err = fillBytes(Float32, "-Infinity")
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0x80, 0xff}, b)

	b, err = fillBytes(Char, "")
	require.NoError(t, err)
	require.Equal(t, []byte{0}, b)
}

func TestNonFiniteNames(t *testing.T) {
	for _, name := range []string{"NaN", "Infinity", "-Infinity"} {
		v, ok := parseNonFinite(name)
		require.True(t, ok, name)
		back, ok := nonFiniteName(v)
		require.True(t, ok, name)
		require.Equal(t, name, back)
	}
	_, ok := nonFiniteName(1.5)
	require.False(t, ok)
	_, ok = parseNonFinite("inf")
	require.False(t, ok)
}
