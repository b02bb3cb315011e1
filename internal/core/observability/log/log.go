package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the log severity, decoupled from the zap types so that callers
// never import zapcore directly.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Field is re-exported so call sites stay independent of the backing library.
type Field = zap.Field

var (
	String   = zap.String
	Int      = zap.Int
	Uint64   = zap.Uint64
	Bool     = zap.Bool
	Duration = zap.Duration
	Error    = zap.Error
	Any      = zap.Any
)

// Log is the logging surface used across the server.
type Log interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Log
}

var _ Log = (*Logger)(nil)

var (
	innerLogger          *Logger
	loggerInitializeOnce sync.Once
)

// Logger wraps a zap.Logger behind the Log interface.
type Logger struct {
	zapLogger *zap.Logger
}

// New builds a JSON logger writing to stderr at the given level. The first
// logger built becomes the one returned by Provide.
func New(level Level) *Logger {
	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(toZapLevel(level)),
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}

	zapLogger, err := config.Build()
	if err != nil {
		panic(err)
	}

	logger := &Logger{zapLogger: zapLogger}
	loggerInitializeOnce.Do(func() { innerLogger = logger })
	return logger
}

// Provide returns the process-wide logger built by the first New call.
func Provide() *Logger {
	return innerLogger
}

// Nop returns a logger that discards everything. Intended for tests.
func Nop() *Logger {
	return &Logger{zapLogger: zap.NewNop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.zapLogger.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.zapLogger.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.zapLogger.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.zapLogger.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.zapLogger.Fatal(msg, fields...) }

func (l *Logger) With(fields ...Field) Log {
	return &Logger{zapLogger: l.zapLogger.With(fields...)}
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelInfo:
		return zap.InfoLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	case LevelFatal:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
