// Package config loads the optional psdkit settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"psdkit/internal/archive"
	"psdkit/internal/psd"
)

// FileName is the settings file looked up in the home directory.
const FileName = ".psdkit.json"

// Config holds every setting the commands read
type Config struct {
	// Compression of repacked layers and extracted archives
	Compression CompressionConfig `json:"compression"`

	// Layer decoding
	Decode DecodeConfig `json:"decode"`
}

// CompressionConfig selects the channel and archive codecs
type CompressionConfig struct {
	Layer   string        `json:"layer"` // "raw", "rle", "zip", "zip-prediction"
	Archive ArchiveConfig `json:"archive"`
}

// ArchiveConfig configures the plane archive stream
type ArchiveConfig struct {
	Codec string `json:"codec"` // "lz4" or "zstd"
	Level int    `json:"level"` // lz4 0-9, zstd 1-22, 0 = codec default
}

// DecodeConfig configures the layer walker
type DecodeConfig struct {
	Workers    int  `json:"workers"`     // Parallel layer decoders, 0 = one per CPU
	SkipBroken bool `json:"skip_broken"` // Keep going past layers that fail to decode
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Compression: CompressionConfig{
			Layer: psd.RLE.String(),
			Archive: ArchiveConfig{
				Codec: archive.CodecLZ4,
				Level: 1,
			},
		},
	}
}

// DefaultPath returns ~/.psdkit.json, or "" when the home directory is
// unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, FileName)
}

// Load reads path over the defaults. A missing file is not an error when
// path is the default location.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every value against what the commands accept.
func (c *Config) Validate() error {
	if _, err := psd.ParseCompression(c.Compression.Layer); err != nil {
		return fmt.Errorf("compression.layer: %w", err)
	}
	opts := archive.Options{Codec: c.Compression.Archive.Codec, Level: c.Compression.Archive.Level}
	if err := archive.ValidateOptions(opts); err != nil {
		return fmt.Errorf("compression.archive: %w", err)
	}
	if c.Decode.Workers < 0 {
		return fmt.Errorf("decode.workers: %d is negative", c.Decode.Workers)
	}
	return nil
}

// LayerCompression returns the configured channel scheme.
func (c *Config) LayerCompression() psd.Compression {
	comp, err := psd.ParseCompression(c.Compression.Layer)
	if err != nil {
		return psd.Raw
	}
	return comp
}

// Save writes the settings as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
