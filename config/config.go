// Package config holds the converter's settings and loads them from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/spzconv/codec"
	"github.com/wippyai/spzconv/errors"
)

// Modes accepted by Config.Mode.
const (
	ModeCompress   = "compress"
	ModeDecompress = "decompress"
	ModeAuto       = "auto" // by extension: .spz decompresses, anything else compresses
)

// Default configuration values.
const (
	DefaultMode          = ModeAuto
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3

	// MaxMemoryLimitPages is the 4GB ceiling of a 32-bit linear memory.
	MaxMemoryLimitPages = 65536
)

type Config struct {
	Codec            string    `yaml:"codec"`
	Mode             string    `yaml:"mode"`
	Quality          int32     `yaml:"quality"`
	IncludeNormals   bool      `yaml:"include_normals"`
	MemoryLimitPages uint32    `yaml:"memory_limit_pages"`
	Output           string    `yaml:"output"`
	OutDir           string    `yaml:"out_dir"`
	Log              LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Mode:    DefaultMode,
		Quality: codec.DefaultQuality,
		Log: LogConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

// Write writes cfg to path as YAML with a generated header.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindUnexpected, err, "marshal config")
	}

	header := fmt.Sprintf("# spzconv configuration\n# Generated: %s\n\n", time.Now().Format(time.RFC3339))
	content := append([]byte(header), data...)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindUnexpected, err, fmt.Sprintf("write %s", path))
	}
	return nil
}
