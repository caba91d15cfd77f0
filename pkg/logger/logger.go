// Package logger holds the process-wide structured logger. Packages log
// through logger.Log with snake_case event names and zap fields.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger = zap.NewNop()

// Init configures the global logger at the given level ("debug", "info",
// "warn", "error"). An empty level falls back to the FITDB_LOG_LEVEL
// environment variable, then to info.
func Init(level string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("FITDB_LOG_LEVEL")))
	}
	var zl zapcore.Level
	switch lvl {
	case "debug":
		zl = zapcore.DebugLevel
	case "warn", "warning":
		zl = zapcore.WarnLevel
	case "error":
		zl = zapcore.ErrorLevel
	default:
		zl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		// never fail startup over logging; keep the nop logger
		return
	}
	Log = l
}

// Sync flushes buffered log entries. Safe to call on shutdown paths.
func Sync() {
	_ = Log.Sync()
}
