// Package observability provides the zap loggers and Prometheus metrics
// shared by the CLI and serve mode.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewCLILogger builds a console logger for CLI commands. Output goes to
// stderr so piped data stays clean.
func NewCLILogger(level string) *zap.Logger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		ParseLevel(level),
	)
	return zap.New(core)
}

// NewServerLogger builds a structured JSON logger for serve mode.
func NewServerLogger(level, service string) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		ParseLevel(level),
	)
	return zap.New(core, zap.AddCaller()).With(zap.String("service", service))
}

// NewLogger selects the encoder by format ("console" or "json").
func NewLogger(level, format, service string) *zap.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return NewServerLogger(level, service)
	}
	return NewCLILogger(level)
}

// ParseLevel converts a level string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
