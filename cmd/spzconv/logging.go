package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wippyai/spzconv/config"
)

// newLogger builds the process logger: console or JSON lines on stderr, plus
// JSON lines into a rotating file when cfg.File is set. The stderr sink is
// dropped in interactive mode, where it would tear the TUI.
func newLogger(cfg config.LogConfig, stderr io.Writer, interactive bool) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var cores []zapcore.Core
	if !interactive {
		var enc zapcore.Encoder
		switch cfg.Format {
		case "json":
			enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		default:
			ec := zap.NewDevelopmentEncoderConfig()
			ec.EncodeLevel = zapcore.CapitalLevelEncoder
			enc = zapcore.NewConsoleEncoder(ec)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(stderr), level))
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(file), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), func() {}, nil
	}

	logger := zap.New(zapcore.NewTee(cores...))
	cleanup := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, cleanup, nil
}
