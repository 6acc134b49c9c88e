package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType is a numpy-style type tag as stored in .zarray ("<f4", "|u1", ...).
type DType string

const (
	Int8    DType = "|i1"
	Int16   DType = "<i2"
	Int32   DType = "<i4"
	Int64   DType = "<i8"
	Uint8   DType = "|u1"
	Uint16  DType = "<u2"
	Uint32  DType = "<u4"
	Uint64  DType = "<u8"
	Float16 DType = "<f2"
	Float32 DType = "<f4"
	Float64 DType = "<f8"
	// Char is the fixed-width character type used for unknown type names.
	Char DType = "|S1"
)

// Element is the closed set of Go types that can be stored in an array.
type Element interface {
	int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float16.Float16 | float32 | float64
}

// TypeOf returns the type tag for the element type T.
func TypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	default:
		return Float64
	}
}

// TypeFromName maps a short type name ("float32", "int64", ...) to its tag.
// Unknown names map to Char.
func TypeFromName(name string) DType {
	switch name {
	case "int8":
		return Int8
	case "int16":
		return Int16
	case "int32":
		return Int32
	case "int64":
		return Int64
	case "uint8":
		return Uint8
	case "uint16":
		return Uint16
	case "uint32":
		return Uint32
	case "uint64":
		return Uint64
	case "float16":
		return Float16
	case "float32":
		return Float32
	case "float64":
		return Float64
	default:
		return Char
	}
}

// ItemSize returns the byte size of one element of d.
func (d DType) ItemSize() (int, error) {
	_, size, err := ParseDType(string(d))
	return size, err
}

// encodeElements serializes data in little-endian order.
func encodeElements[T Element](data []T) ([]byte, error) {
	size, err := TypeOf[T]().ItemSize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(data) * size)
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("failed to encode %d elements: %w", len(data), err)
	}
	return buf.Bytes(), nil
}

// decodeElements is the inverse of encodeElements.
func decodeElements[T Element](raw []byte) ([]T, error) {
	size, err := TypeOf[T]().ItemSize()
	if err != nil {
		return nil, err
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of item size %d", ErrShapeMismatch, len(raw), size)
	}
	out := make([]T, len(raw)/size)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("failed to decode %d elements: %w", len(out), err)
	}
	return out, nil
}

// fillBytes encodes a .zarray fill_value as one element of dtype d.
// A nil or non-numeric fill value yields zeros. Float types also accept
// the names "NaN", "Infinity" and "-Infinity".
func fillBytes(d DType, fill any) ([]byte, error) {
	size, err := d.ItemSize()
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	v, ok := fill.(float64)
	if name, isName := fill.(string); isName && d.isFloat() {
		v, ok = parseNonFinite(name)
	}
	if !ok || v == 0 {
		return out, nil
	}
	switch d {
	case Int8, Uint8:
		out[0] = byte(int64(v))
	case Int16, Uint16:
		binary.LittleEndian.PutUint16(out, uint16(int64(v)))
	case Int32, Uint32:
		binary.LittleEndian.PutUint32(out, uint32(int64(v)))
	case Int64:
		binary.LittleEndian.PutUint64(out, uint64(int64(v)))
	case Uint64:
		binary.LittleEndian.PutUint64(out, uint64(v))
	case Float16:
		binary.LittleEndian.PutUint16(out, float16.Fromfloat32(float32(v)).Bits())
	case Float32:
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	}
	return out, nil
}

func (d DType) isFloat() bool {
	return d == Float16 || d == Float32 || d == Float64
}

// nonFiniteName returns the JSON name Zarr uses for a NaN or infinite
// value.
func nonFiniteName(v float64) (string, bool) {
	switch {
	case math.IsNaN(v):
		return "NaN", true
	case math.IsInf(v, 1):
		return "Infinity", true
	case math.IsInf(v, -1):
		return "-Infinity", true
	}
	return "", false
}

func parseNonFinite(name string) (float64, bool) {
	switch name {
	case "NaN":
		return math.NaN(), true
	case "Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	return 0, false
}
