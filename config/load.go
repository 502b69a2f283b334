package config

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/spzconv/errors"
)

// Load reads the YAML file at path over the defaults and validates the
// result. Unknown keys are rejected. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("read config %s", path).
			Cause(err).
			Build()
	}
	if err := Parse(data, &cfg); err != nil {
		return nil, errors.WithFile(err, errors.PhaseConfig, path)
	}
	return &cfg, nil
}

// Parse decodes YAML into cfg, keeping the values of keys the document does
// not mention, then validates cfg.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	if err := Validate(cfg); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid config")
	}
	return nil
}
