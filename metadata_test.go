package zarr_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/TuSKan/go-zarr"
)

func TestParseDType(t *testing.T) {
	tests := []struct {
		input       string
		expectedStr string
		expectedSz  int
		expectErr   bool
	}{
		{"<f4", "float32", 4, false},
		{"<f2", "float16", 2, false},
		{"<i8", "int64", 8, false},
		{"|u1", "uint8", 1, false},
		{"|b1", "bool", 1, false},
		{"|S1", "char", 1, false},
		{">f4", "", 0, true}, // big-endian should fail
		{"x2", "", 0, true},  // invalid encoding
		{"<x4", "", 0, true}, // unknown kind
		{"<i", "", 0, true},  // incomplete size
		{"<i0", "", 0, true}, // zero size
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			str, sz, err := zarr.ParseDType(tt.input)

			if tt.expectErr {
				if err == nil {
					t.Errorf("expected error for input %q, but got nil", tt.input)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error for input %q: %v", tt.input, err)
				}
				if str != tt.expectedStr {
					t.Errorf("expected string %q, got %q", tt.expectedStr, str)
				}
				if sz != tt.expectedSz {
					t.Errorf("expected size %d, got %d", tt.expectedSz, sz)
				}
			}
		})
	}
}

func TestLoadMetadata(t *testing.T) {
	tempDir := t.TempDir()

	mockJSON := `{
		"zarr_format": 2,
		"shape": [128, 128],
		"chunks": [64, 64],
		"dtype": "<f4",
		"compressor": {"id": "zstd", "level": 3},
		"filters": [{"id": "shuffle", "elementsize": 4}],
		"fill_value": 0.0,
		"order": "C"
	}`

	zarrayPath := filepath.Join(tempDir, ".zarray")
	if err := os.WriteFile(zarrayPath, []byte(mockJSON), 0644); err != nil {
		t.Fatalf("failed to write mock json: %v", err)
	}

	f, err := os.Open(zarrayPath)
	if err != nil {
		t.Fatalf("failed to open mock json: %v", err)
	}
	defer f.Close()

	meta, err := zarr.LoadMetadata(f)
	if err != nil {
		t.Fatalf("LoadMetadata failed: %v", err)
	}

	expectedShape := []int{128, 128}
	if !reflect.DeepEqual(meta.Shape, expectedShape) {
		t.Errorf("expected shape %v, got %v", expectedShape, meta.Shape)
	}

	expectedChunks := []int{64, 64}
	if !reflect.DeepEqual(meta.Chunks, expectedChunks) {
		t.Errorf("expected chunks %v, got %v", expectedChunks, meta.Chunks)
	}

	if meta.ZarrFormat != 2 {
		t.Errorf("expected zarr_format 2, got %d", meta.ZarrFormat)
	}

	if meta.DType != "<f4" {
		t.Errorf("expected dtype <f4, got %s", meta.DType)
	}

	if meta.Compressor == nil || meta.Compressor.ID != zarr.CompressorZstd || meta.Compressor.Level != 3 {
		t.Errorf("expected zstd level 3 compressor, got %+v", meta.Compressor)
	}

	if len(meta.Filters) != 1 || meta.Filters[0].ID != zarr.FilterShuffle || meta.Filters[0].ElementSize != 4 {
		t.Errorf("expected one shuffle filter, got %+v", meta.Filters)
	}
}

func TestLoadMetadata_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
		err  error
	}{
		{"format 3", `{"zarr_format": 3, "shape": [4], "chunks": [4], "dtype": "<f4"}`, nil},
		{"fortran order", `{"zarr_format": 2, "shape": [4], "chunks": [4], "dtype": "<f4", "order": "F"}`, nil},
		{"rank mismatch", `{"zarr_format": 2, "shape": [4, 4], "chunks": [4], "dtype": "<f4"}`, zarr.ErrShapeMismatch},
		{"zero chunk", `{"zarr_format": 2, "shape": [4], "chunks": [0], "dtype": "<f4"}`, zarr.ErrShapeMismatch},
		{"not json", `zarr`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := zarr.LoadMetadata(strings.NewReader(tt.json))
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestLoadMetadata_EmptyArray(t *testing.T) {
	meta, err := zarr.LoadMetadata(strings.NewReader(`{"zarr_format": 2, "shape": [0, 3], "chunks": [0, 3], "dtype": "<i8", "compressor": null}`))
	if err != nil {
		t.Fatalf("LoadMetadata failed: %v", err)
	}
	if !reflect.DeepEqual(meta.Shape, []int{0, 3}) {
		t.Errorf("expected shape [0 3], got %v", meta.Shape)
	}
}
