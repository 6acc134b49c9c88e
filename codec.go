package zarr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// Compressor and filter ids as written to .zarray.
const (
	CompressorZstd = "zstd"
	CompressorZlib = "zlib"
	CompressorGzip = "gzip"
	CompressorLZ4  = "lz4"

	FilterShuffle  = "shuffle"
	FilterChecksum = "blake3"
)

const checksumSize = 32

var errChecksum = errors.New("chunk checksum mismatch")

// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("zarr: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeChunk runs raw chunk bytes through the filters and the compressor.
func encodeChunk(raw []byte, meta *Metadata) ([]byte, error) {
	data := raw
	for _, f := range meta.Filters {
		var err error
		if data, err = applyFilter(data, f); err != nil {
			return nil, err
		}
	}
	if meta.Compressor == nil {
		return data, nil
	}
	return compress(data, meta.Compressor)
}

// decodeChunk reverses encodeChunk. size is the expected decoded length.
func decodeChunk(stored []byte, meta *Metadata, size int) ([]byte, error) {
	data := stored
	if meta.Compressor != nil {
		var err error
		if data, err = decompress(data, meta.Compressor); err != nil {
			return nil, err
		}
	}
	for i := len(meta.Filters) - 1; i >= 0; i-- {
		var err error
		if data, err = reverseFilter(data, meta.Filters[i]); err != nil {
			return nil, err
		}
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: decoded chunk has %d bytes, expected %d", ErrShapeMismatch, len(data), size)
	}
	return data, nil
}

func applyFilter(data []byte, f FilterConfig) ([]byte, error) {
	switch f.ID {
	case FilterShuffle:
		return shuffle(data, f.ElementSize), nil
	case FilterChecksum:
		sum := blake3.Sum256(data)
		return append(append(make([]byte, 0, len(data)+checksumSize), data...), sum[:]...), nil
	default:
		return nil, fmt.Errorf("unsupported filter: %s", f.ID)
	}
}

func reverseFilter(data []byte, f FilterConfig) ([]byte, error) {
	switch f.ID {
	case FilterShuffle:
		return unshuffle(data, f.ElementSize), nil
	case FilterChecksum:
		if len(data) < checksumSize {
			return nil, errChecksum
		}
		payload := data[:len(data)-checksumSize]
		sum := blake3.Sum256(payload)
		if !bytes.Equal(sum[:], data[len(payload):]) {
			return nil, errChecksum
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unsupported filter: %s", f.ID)
	}
}

// shuffle groups byte k of every element together, k = 0..elementSize-1.
// Trailing bytes that do not form a whole element are kept as-is.
func shuffle(data []byte, elementSize int) []byte {
	if elementSize <= 1 {
		return data
	}
	n := len(data) / elementSize
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for k := 0; k < elementSize; k++ {
			out[k*n+i] = data[i*elementSize+k]
		}
	}
	copy(out[n*elementSize:], data[n*elementSize:])
	return out
}

func unshuffle(data []byte, elementSize int) []byte {
	if elementSize <= 1 {
		return data
	}
	n := len(data) / elementSize
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		for k := 0; k < elementSize; k++ {
			out[i*elementSize+k] = data[k*n+i]
		}
	}
	copy(out[n*elementSize:], data[n*elementSize:])
	return out
}

func compress(data []byte, c *CompressorConfig) ([]byte, error) {
	switch c.ID {
	case CompressorZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)))
		if err != nil {
			return nil, fmt.Errorf("failed to init zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case CompressorZlib:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, c.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to init zlib writer: %w", err)
		}
		return finish(&buf, zw, data)
	case CompressorGzip:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, c.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to init gzip writer: %w", err)
		}
		return finish(&buf, zw, data)
	case CompressorLZ4:
		// numcodecs layout: little-endian uint32 decoded size, then the block.
		out := make([]byte, 4+lz4.CompressBlockBound(len(data)))
		binary.LittleEndian.PutUint32(out, uint32(len(data)))
		n, err := lz4.CompressBlock(data, out[4:], nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 {
			// Incompressible: store a literal-only block.
			return append(out[:4], lz4Literals(data)...), nil
		}
		return out[:4+n], nil
	default:
		return nil, fmt.Errorf("unsupported compressor: %s", c.ID)
	}
}

// lz4Literals encodes data as a single LZ4 sequence with no match.
func lz4Literals(data []byte) []byte {
	n := len(data)
	out := make([]byte, 0, n+n/255+2)
	if n < 15 {
		out = append(out, byte(n<<4))
	} else {
		out = append(out, 0xF0)
		rest := n - 15
		for ; rest >= 255; rest -= 255 {
			out = append(out, 255)
		}
		out = append(out, byte(rest))
	}
	return append(out, data...)
}

func finish(buf *bytes.Buffer, w io.WriteCloser, data []byte) ([]byte, error) {
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte, c *CompressorConfig) ([]byte, error) {
	switch c.ID {
	case CompressorZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress zstd chunk: %w", err)
		}
		return out, nil
	case CompressorZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to init zlib reader: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressorGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to init gzip reader: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case CompressorLZ4:
		if len(data) < 4 {
			return nil, fmt.Errorf("lz4 decompress: truncated header")
		}
		out := make([]byte, binary.LittleEndian.Uint32(data))
		n, err := lz4.UncompressBlock(data[4:], out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unsupported compressor: %s", c.ID)
	}
}
