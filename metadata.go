package zarr

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

const (
	zarrFormat = 2

	groupKey = ".zgroup"
	arrayKey = ".zarray"
	attrsKey = ".zattrs"
)

// CompressorConfig represents the Zarr compressor metadata.
type CompressorConfig struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
	Level   int    `json:"level,omitempty"`
}

// FilterConfig represents one entry of the .zarray filters list.
type FilterConfig struct {
	ID          string `json:"id"`
	ElementSize int    `json:"elementsize,omitempty"`
}

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *CompressorConfig `json:"compressor"`
	Filters            []FilterConfig    `json:"filters"`
	FillValue          interface{}       `json:"fill_value"`
	Order              string            `json:"order"`
	DimensionSeparator string            `json:"dimension_separator,omitempty"`
}

// GroupMetadata represents the Zarr V2 .zgroup metadata.
type GroupMetadata struct {
	ZarrFormat int `json:"zarr_format"`
}

// LoadMetadata reads and parses .zarray content.
func LoadMetadata(reader io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *Metadata) validate() error {
	if m.ZarrFormat != zarrFormat {
		return fmt.Errorf("unsupported zarr_format: %d, expected 2", m.ZarrFormat)
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("unsupported order: %q, expected C", m.Order)
	}
	if len(m.Chunks) != len(m.Shape) {
		return fmt.Errorf("%w: chunks %v do not match shape %v", ErrShapeMismatch, m.Chunks, m.Shape)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 || m.Chunks[i] < 0 || (m.Shape[i] > 0 && m.Chunks[i] == 0) {
			return fmt.Errorf("%w: invalid extent %d / chunk %d at dimension %d", ErrShapeMismatch, m.Shape[i], m.Chunks[i], i)
		}
	}
	return nil
}

// separator returns the chunk key separator, "." unless configured.
func (m *Metadata) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// ParseDType takes a numpy-style string like "<f4", "|b1", "<i8",
// and returns a simplified string name (e.g., "float32", "bool", "int64"),
// the byte size (e.g., 4, 1, 8), and an error if unsupported.
// Reject big-endian (>) types for now.
func ParseDType(s string) (string, int, error) {
	if len(s) < 3 {
		return "", 0, fmt.Errorf("invalid dtype: %s", s)
	}

	endian := s[0]
	if endian == '>' {
		return "", 0, fmt.Errorf("big-endian types are unsupported: %s", s)
	}

	kind := s[1]
	sizeStr := s[2:]

	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return "", 0, fmt.Errorf("invalid size in dtype: %s", s)
	}

	switch kind {
	case 'b':
		return "bool", size, nil
	case 'i':
		return fmt.Sprintf("int%d", size*8), size, nil
	case 'u':
		return fmt.Sprintf("uint%d", size*8), size, nil
	case 'f':
		return fmt.Sprintf("float%d", size*8), size, nil
	case 'c':
		return fmt.Sprintf("complex%d", size*8), size, nil
	case 'S':
		return "char", size, nil
	default:
		return "", 0, fmt.Errorf("unsupported dtype kind: %c in %s", kind, s)
	}
}
