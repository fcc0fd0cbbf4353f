// Package telemetry is the structured-logging wrapper the rest of the
// driver logs through. The teacher repo only reaches for the standard
// library's log package, but go.uber.org/zap is part of this pack's
// ecosystem (viamrobotics-rdk's go.mod) and a cooperative driver that
// transitions through DETECT_BAUD/CONFIGURE/LOST_COMMUNICATION benefits
// from leveled, structured fields (state, step, baud) far more than a
// flat log.Printf would give it.
package telemetry

import (
	"go.uber.org/zap"
)

// Logger is the narrow logging surface the driver depends on, so tests can
// substitute zap.NewNop() or a recording logger without touching call
// sites.
type Logger struct {
	z *zap.Logger
}

// New returns a production JSON logger.
func New() *Logger {
	z, err := zap.NewProduction()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// NewDevelopment returns a human-readable console logger, for CLI tools.
func NewDevelopment() *Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{z: z}
}

// Nop returns a logger that discards everything, the default for package
// consumers that never call SetLogger.
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// Named returns a child logger scoped to a component, e.g. "configurator".
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{z: l.z.Named(name)}
}

func (l *Logger) core() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

// Info logs a leveled message with structured fields.
func (l *Logger) Info(msg string, fields ...zap.Field) { l.core().Info(msg, fields...) }

// Warn logs a leveled message with structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.core().Warn(msg, fields...) }

// Error logs a leveled message with structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) { l.core().Error(msg, fields...) }

// Sync flushes buffered log entries; call before process exit.
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	return l.z.Sync()
}
