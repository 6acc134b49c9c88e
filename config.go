package zarr

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"gopkg.in/yaml.v3"

	"github.com/TuSKan/go-zarr/pgroup"
)

// DefaultChunkSize is the target chunk length along the outermost axis.
const DefaultChunkSize = 8192

// Config holds the write defaults of a File.
type Config struct {
	// ChunkSize is the target chunk length along the outermost axis.
	ChunkSize int `yaml:"chunk_size"`

	Compression CompressionConfig `yaml:"compression"`

	// Collective selects rank-ordered collective writes; false writes
	// independently.
	Collective bool `yaml:"collective"`

	// Distributed reduces the leading extent across the process group
	// when writing a new dataset.
	Distributed bool `yaml:"distributed"`

	// Concurrency bounds the number of chunks encoded and stored at once
	// by one participant.
	Concurrency int `yaml:"concurrency"`
}

// CompressionConfig selects the chunk codec.
type CompressionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Codec    string `yaml:"codec"`
	Level    int    `yaml:"level"`
	Shuffle  bool   `yaml:"shuffle"`
	Checksum bool   `yaml:"checksum"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ChunkSize: DefaultChunkSize,
		Compression: CompressionConfig{
			Enabled: true,
			Codec:   CompressorZstd,
			Level:   3,
		},
		Collective:  true,
		Distributed: true,
		Concurrency: 4,
	}
}

// LoadConfig reads a YAML config file. Keys absent from the file keep their
// DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Compression.Enabled {
		switch c.Compression.Codec {
		case CompressorZstd, CompressorZlib, CompressorGzip, CompressorLZ4:
		default:
			return fmt.Errorf("unsupported compression codec: %q", c.Compression.Codec)
		}
	}
	return nil
}

// FailFunc is the fatal-error sink. It must not return.
type FailFunc func(message string)

// FileOption configures a File.
type FileOption func(*fileOptions)

type fileOptions struct {
	config Config
	group  pgroup.Group
	logger logr.Logger
	fail   FailFunc

	returnErrors bool
}

func defaultFileOptions() *fileOptions {
	return &fileOptions{
		config: DefaultConfig(),
		group:  pgroup.Solo(),
		logger: stdr.New(log.New(os.Stderr, "zarr: ", log.LstdFlags)),
	}
}

// WithConfig replaces the write defaults.
func WithConfig(cfg Config) FileOption {
	return func(o *fileOptions) {
		o.config = cfg
	}
}

// WithGroup sets the process group. Without it the file is single-participant.
func WithGroup(g pgroup.Group) FileOption {
	return func(o *fileOptions) {
		if g != nil {
			o.group = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) FileOption {
	return func(o *fileOptions) {
		o.logger = l
	}
}

// WithFailFunc replaces the fatal-error sink. The default logs the
// message, aborts the process group and exits with status 1.
func WithFailFunc(fn FailFunc) FileOption {
	return func(o *fileOptions) {
		o.fail = fn
		o.returnErrors = false
	}
}

// ReturnErrors makes every operation return its error instead of calling
// the fatal-error sink.
func ReturnErrors() FileOption {
	return func(o *fileOptions) {
		o.fail = nil
		o.returnErrors = true
	}
}

// WriteOption configures one dataset write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	collective  bool
	distributed bool
	start       []int
	count       []int
	chunks      []int
	compression CompressionConfig
	fillValue   interface{}
}

func (f *File) writeOptions(opts []WriteOption) *writeOptions {
	o := &writeOptions{
		collective:  f.config.Collective,
		distributed: f.config.Distributed,
		compression: f.config.Compression,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCollective overrides the transfer mode of one write.
func WithCollective(collective bool) WriteOption {
	return func(o *writeOptions) {
		o.collective = collective
	}
}

// WithDistributed overrides whether the leading extent is reduced across
// the process group.
func WithDistributed(distributed bool) WriteOption {
	return func(o *writeOptions) {
		o.distributed = distributed
	}
}

// WithHyperslab writes the data into the file region start/count.
func WithHyperslab(start, count []int) WriteOption {
	return func(o *writeOptions) {
		o.start = start
		o.count = count
	}
}

// WithChunks sets explicit chunk dimensions. They are clamped to the extent.
func WithChunks(dims ...int) WriteOption {
	return func(o *writeOptions) {
		o.chunks = dims
	}
}

// WithCompression overrides the codec of one dataset.
func WithCompression(c CompressionConfig) WriteOption {
	return func(o *writeOptions) {
		o.compression = c
	}
}

// WithFillValue sets the value of never-written elements.
func WithFillValue(v float64) WriteOption {
	return func(o *writeOptions) {
		if name, ok := nonFiniteName(v); ok {
			o.fillValue = name
			return
		}
		o.fillValue = v
	}
}
