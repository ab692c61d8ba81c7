// Package logging builds the zap logger used by assetmirror.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level string // debug, info, warn, error
	File  string // rotated log file; empty logs to stderr
	JSON  bool   // JSON encoding for stderr output
}

// Rotation limits for the log file.
const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// New builds a logger from cfg. An unknown level is an error.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var (
		sink    zapcore.WriteSyncer
		encoder zapcore.Encoder
	)
	if cfg.File != "" {
		sink = zapcore.AddSync(newRotator(cfg.File))
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		sink = zapcore.Lock(os.Stderr)
		encoder = consoleEncoder(cfg.JSON)
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddStacktrace(zapcore.DPanicLevel)), nil
}

// NewWriter builds a logger that writes to w. Used by tests and callers
// that capture output.
func NewWriter(w io.Writer, level zapcore.Level) *zap.Logger {
	core := zapcore.NewCore(consoleEncoder(false), zapcore.AddSync(w), level)
	return zap.New(core)
}

func newRotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
}

func consoleEncoder(json bool) zapcore.Encoder {
	if json {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.EncodeCaller = nil
	return zapcore.NewConsoleEncoder(encCfg)
}
