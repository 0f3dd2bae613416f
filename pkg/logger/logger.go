package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with a smaller, service-oriented API.
type Logger struct {
	zap *zap.Logger
}

// New creates a new Logger with the given level and encoding ("json" or "console").
func New(level, encoding string) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if encoding != "" {
		cfg.Encoding = encoding
	}
	if cfg.Encoding == "console" {
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{zap: z}, nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zap.Fatal(msg, fields...) }

// Context-aware variants. Kept separate so request-scoped metadata can be
// attached later without touching call sites.
func (l *Logger) DebugContext(_ context.Context, msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}
func (l *Logger) InfoContext(_ context.Context, msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}
func (l *Logger) ErrorContext(_ context.Context, msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// Field helpers so callers do not need to import zap directly.
func Field(key string, value interface{}) zap.Field { return zap.Any(key, value) }
func StringField(key, value string) zap.Field       { return zap.String(key, value) }
func IntField(key string, value int) zap.Field      { return zap.Int(key, value) }
func Float64Field(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}
func ErrorField(err error) zap.Field { return zap.Error(err) }
