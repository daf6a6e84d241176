// Package config provides unified configuration for the frame indexer and tile synthesizer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for building and serving a frame index.
type Config struct {
	// DataDir is the base directory for all derived files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Index configuration
	Index IndexConfig `json:"index" yaml:"index"`

	// Builder configuration
	Builder BuilderConfig `json:"builder" yaml:"builder"`

	// Synth configuration
	Synth SynthConfig `json:"synth" yaml:"synth"`

	// Absent-resource policy
	Absent AbsentConfig `json:"absent" yaml:"absent"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// IndexConfig holds index file configuration.
type IndexConfig struct {
	// Path is the index file location; its directory is the index root
	Path string `json:"path" yaml:"path"`

	// DataSeries is the data-series identifier recorded in the index
	DataSeries string `json:"data_series" yaml:"data_series"`

	// Description is free text recorded in the index
	Description string `json:"description" yaml:"description"`
}

// BuilderConfig holds batch builder configuration.
type BuilderConfig struct {
	// Workers is the worker pool size; values <= 1 process serially
	Workers int `json:"workers" yaml:"workers"`

	// WaveletSize is the square edge, in pixels, frames are downsampled to before encoding
	WaveletSize int `json:"wavelet_size" yaml:"wavelet_size"`

	// PollInterval is how often the builder checks whether the pool has drained
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Mosaic configuration
	Mosaic MosaicConfig `json:"mosaic" yaml:"mosaic"`
}

// MosaicConfig holds initial coarse mosaic configuration.
type MosaicConfig struct {
	// Enabled controls whether the mosaic phase runs
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TileSize is the mosaic tile edge in pixels
	TileSize int `json:"tile_size" yaml:"tile_size"`

	// LevelZeroDelta is the level-0 tile extent in degrees
	LevelZeroDelta float64 `json:"level_zero_delta" yaml:"level_zero_delta"`

	// Levels is the number of levels to generate, each halving the tile extent
	Levels int `json:"levels" yaml:"levels"`

	// Path is the mosaic database path (defaults next to the index)
	Path string `json:"path" yaml:"path"`
}

// SynthConfig holds tile synthesizer configuration.
type SynthConfig struct {
	// FullResolutionThreshold is the footprint in pixels above which the source frame is decoded
	FullResolutionThreshold int `json:"full_resolution_threshold" yaml:"full_resolution_threshold"`

	// PreloadResolution is the largest resolution served from the shared partial-decode cache
	PreloadResolution int `json:"preload_resolution" yaml:"preload_resolution"`

	// PreloadCacheEntries bounds the partial-decode cache
	PreloadCacheEntries int `json:"preload_cache_entries" yaml:"preload_cache_entries"`
}

// AbsentConfig holds the absent-resource retry policy.
type AbsentConfig struct {
	// MaxStrikes is the number of failures before a frame is marked absent
	MaxStrikes int `json:"max_strikes" yaml:"max_strikes"`

	// Cooldown is how long a frame stays absent; 0 means for the process lifetime
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// CacheDir is the root for wavelet files allocated by logical key
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// Type is the publish target type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local publish path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every published object path
	Prefix string `json:"prefix" yaml:"prefix"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Development switches to human-readable console output
	Development bool `json:"development" yaml:"development"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/rpftiles",
		Index: IndexConfig{
			DataSeries: "CADRG",
		},
		Builder: BuilderConfig{
			Workers:      1,
			WaveletSize:  256,
			PollInterval: 25 * time.Millisecond,
			Mosaic: MosaicConfig{
				Enabled:        true,
				TileSize:       512,
				LevelZeroDelta: 36,
				Levels:         1,
			},
		},
		Synth: SynthConfig{
			FullResolutionThreshold: 256,
			PreloadResolution:       32,
			PreloadCacheEntries:     4096,
		},
		Absent: AbsentConfig{
			MaxStrikes: 1,
			Cooldown:   0,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/rpftiles"
	}

	if c.Index.Path == "" {
		c.Index.Path = filepath.Join(c.DataDir, "rpf.idx")
	}

	if c.Builder.Mosaic.Path == "" {
		c.Builder.Mosaic.Path = filepath.Join(filepath.Dir(c.Index.Path), "mosaic.db")
	}

	if c.Storage.CacheDir == "" {
		c.Storage.CacheDir = filepath.Join(c.DataDir, "cache")
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "published")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Builder.WaveletSize < 1 || c.Builder.WaveletSize&(c.Builder.WaveletSize-1) != 0 {
		return fmt.Errorf("builder.wavelet_size must be a positive power of two, got %d", c.Builder.WaveletSize)
	}

	if c.Builder.Mosaic.Enabled {
		if c.Builder.Mosaic.TileSize < 1 {
			return fmt.Errorf("builder.mosaic.tile_size must be positive, got %d", c.Builder.Mosaic.TileSize)
		}
		if c.Builder.Mosaic.LevelZeroDelta <= 0 || c.Builder.Mosaic.LevelZeroDelta > 180 {
			return fmt.Errorf("builder.mosaic.level_zero_delta must be in (0, 180], got %g", c.Builder.Mosaic.LevelZeroDelta)
		}
		if c.Builder.Mosaic.Levels < 1 {
			return fmt.Errorf("builder.mosaic.levels must be at least 1, got %d", c.Builder.Mosaic.Levels)
		}
	}

	if c.Synth.FullResolutionThreshold < 1 {
		return fmt.Errorf("synth.full_resolution_threshold must be positive, got %d", c.Synth.FullResolutionThreshold)
	}

	if c.Synth.PreloadResolution < 1 {
		return fmt.Errorf("synth.preload_resolution must be positive, got %d", c.Synth.PreloadResolution)
	}

	if c.Absent.MaxStrikes < 1 {
		return fmt.Errorf("absent.max_strikes must be at least 1, got %d", c.Absent.MaxStrikes)
	}

	if c.Absent.Cooldown < 0 {
		return fmt.Errorf("absent.cooldown must not be negative, got %s", c.Absent.Cooldown)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the RPFTILES_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("RPFTILES_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Index configuration
	if v := os.Getenv("RPFTILES_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("RPFTILES_DATA_SERIES"); v != "" {
		cfg.Index.DataSeries = v
	}

	// Builder configuration
	if v := os.Getenv("RPFTILES_BUILDER_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Builder.Workers)
	}
	if v := os.Getenv("RPFTILES_BUILDER_WAVELET_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Builder.WaveletSize)
	}
	if v := os.Getenv("RPFTILES_MOSAIC_ENABLED"); v != "" {
		cfg.Builder.Mosaic.Enabled = v == "true" || v == "1"
	}

	// Synth configuration
	if v := os.Getenv("RPFTILES_SYNTH_THRESHOLD"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Synth.FullResolutionThreshold)
	}
	if v := os.Getenv("RPFTILES_SYNTH_PRELOAD_RESOLUTION"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Synth.PreloadResolution)
	}

	// Absent configuration
	if v := os.Getenv("RPFTILES_ABSENT_MAX_STRIKES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Absent.MaxStrikes)
	}
	if v := os.Getenv("RPFTILES_ABSENT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Absent.Cooldown = d
		}
	}

	// Storage configuration
	if v := os.Getenv("RPFTILES_CACHE_DIR"); v != "" {
		cfg.Storage.CacheDir = v
	}
	if v := os.Getenv("RPFTILES_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("RPFTILES_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("RPFTILES_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("RPFTILES_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("RPFTILES_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	if v := os.Getenv("RPFTILES_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.Index.Path),
		c.Storage.CacheDir,
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
