// Package logger provides the structured logging facade used across leafwatch.
//
// Call sites depend on the Logger interface and the typed field helpers in this
// package; the zap backend stays an implementation detail so tests can swap in
// a discarding logger without touching production wiring.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is a textual log level as it appears in configuration.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Field is a single structured key/value attached to a log entry.
type Field = zap.Field

// Logger is the logging interface passed to every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that always carries the given fields.
	With(fields ...Field) Logger
	// Module returns a child logger tagged with a component name.
	Module(name string) Logger

	Sync() error
}

type zapLogger struct {
	z *zap.Logger
}

// NewZapLogger creates a JSON logger writing to w at the given level.
// A nil writer logs to stdout.
func NewZapLogger(w io.Writer, level LogLevel, fields []Field) Logger {
	return newLogger(w, level, FormatJSON, fields)
}

// New creates a logger from textual configuration values. Unknown levels fall
// back to info, unknown formats to JSON.
func New(level, format, serviceName string) Logger {
	var fields []Field
	if serviceName != "" {
		fields = append(fields, zap.String("service", serviceName))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		fields = append(fields, zap.String("hostname", hostname))
	}
	return newLogger(os.Stdout, LogLevel(strings.ToLower(level)), format, fields)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func newLogger(w io.Writer, level LogLevel, format string, fields []Field) Logger {
	if w == nil {
		w = os.Stdout
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == FormatConsole {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(toZapLevel(level)))
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if len(fields) > 0 {
		z = z.With(fields...)
	}
	return &zapLogger{z: z}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) Module(name string) Logger {
	return &zapLogger{z: l.z.With(zap.String("module", name))}
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

// String constructs a string field.
func String(key, value string) Field { return zap.String(key, value) }

// Int constructs an int field.
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 constructs an int64 field.
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Uint64 constructs a uint64 field.
func Uint64(key string, value uint64) Field { return zap.Uint64(key, value) }

// Float64 constructs a float64 field.
func Float64(key string, value float64) Field { return zap.Float64(key, value) }

// Bool constructs a bool field.
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Duration constructs a duration field.
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Time constructs a timestamp field.
func Time(key string, value time.Time) Field { return zap.Time(key, value) }

// Error constructs the conventional "error" field.
func Error(err error) Field { return zap.Error(err) }

// Any constructs a field from an arbitrary value.
func Any(key string, value any) Field { return zap.Any(key, value) }
