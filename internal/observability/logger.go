// Package observability owns the structured logger, the Prometheus metric
// collectors, and the OpenTelemetry tracer provider shared across the
// service. Handlers and middleware emit through this package rather than
// constructing their own instruments.
package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServerLogger is the process-wide structured logger. It is initialized once
// by the serve command; packages guard against nil so unit tests that never
// call InitServerLogger stay quiet.
var ServerLogger *zap.Logger

// InitServerLogger initializes the server logger with JSON output on stderr.
func InitServerLogger(serviceName, logLevel string) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(logLevel))
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.InitialFields = map[string]any{"service": serviceName}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	ServerLogger = logger
	return nil
}

// Logger returns the server logger, falling back to a no-op logger so call
// sites never need a nil check.
func Logger() *zap.Logger {
	if ServerLogger == nil {
		return zap.NewNop()
	}
	return ServerLogger
}

func parseLogLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
