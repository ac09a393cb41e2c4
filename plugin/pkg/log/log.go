// Package log is the logging entry point used throughout vdns, modeled on
// CoreDNS's plugin/pkg/log package: a single process-wide logger that
// individual plugins and subsystems get a tagged child of, rather than
// each constructing their own from scratch.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = newDefault()

func newDefault() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
	return zap.New(core)
}

// SetDebug reinitializes the base logger at debug level, as a single
// call since vdns has one global config rather than per-zone debug
// directives.
func SetDebug(debug bool) {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), level)
	base = zap.New(core)
}

// NewWithPlugin returns a logger scoped to a single plugin tag.
func NewWithPlugin(tag string) *zap.Logger {
	return base.With(zap.String("plugin", tag))
}

// Named returns a logger scoped to an arbitrary subsystem name (listener,
// config loader, observability bootstrap).
func Named(name string) *zap.Logger {
	return base.Named(name)
}

// L returns the process-wide base logger.
func L() *zap.Logger { return base }
