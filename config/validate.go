package config

import (
	"fmt"
	"strings"

	"github.com/wippyai/spzconv/codec"
	"github.com/wippyai/spzconv/errors"
)

// ValidationError represents a config validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var b strings.Builder
	b.WriteString("config validation failed:")
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

var (
	validModes      = map[string]bool{ModeCompress: true, ModeDecompress: true, ModeAuto: true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"console": true, "json": true}
)

// Validate checks cfg and returns ValidationErrors listing every problem.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if !validModes[cfg.Mode] {
		errs = append(errs, ValidationError{
			Field:   "mode",
			Message: fmt.Sprintf("must be compress, decompress or auto, got %q", cfg.Mode),
		})
	}

	if cfg.Quality < codec.MinQuality || cfg.Quality > codec.MaxQuality {
		errs = append(errs, ValidationError{
			Field:   "quality",
			Message: fmt.Sprintf("must be between %d and %d, got %d", codec.MinQuality, codec.MaxQuality, cfg.Quality),
		})
	}

	if cfg.MemoryLimitPages > MaxMemoryLimitPages {
		errs = append(errs, ValidationError{
			Field:   "memory_limit_pages",
			Message: fmt.Sprintf("must be at most %d, got %d", MaxMemoryLimitPages, cfg.MemoryLimitPages),
		})
	}

	if cfg.Output != "" && cfg.OutDir != "" {
		errs = append(errs, ValidationError{
			Field:   "output",
			Message: "output and out_dir are mutually exclusive",
		})
	}

	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("must be debug, info, warn or error, got %q", cfg.Log.Level),
		})
	}

	if !validLogFormats[cfg.Log.Format] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("must be console or json, got %q", cfg.Log.Format),
		})
	}

	if cfg.Log.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "log.max_size_mb",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Log.MaxSizeMB),
		})
	}

	if cfg.Log.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "log.max_backups",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Log.MaxBackups),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// IsValidationError reports whether err wraps ValidationErrors.
func IsValidationError(err error) bool {
	var v ValidationErrors
	return errors.As(err, &v)
}
