package logging

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Formats accepted by New.
const (
	FormatProduction  = "production"
	FormatDevelopment = "development"
)

var ErrNoLoggerInContext = errors.New("no logger in context")

// New builds a logger for the given level and format. Unknown levels fall
// back to info; any format other than development yields JSON output.
func New(level, format string) (*zap.Logger, error) {
	var config zap.Config
	if format == FormatDevelopment {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	config.InitialFields = map[string]any{
		"app": "ws",
	}
	config.Level = parseLevel(level)
	config.OutputPaths = []string{"stderr"}

	return config.Build()
}

func parseLevel(lvl string) zap.AtomicLevel {
	if atom, err := zap.ParseAtomicLevel(lvl); err == nil && lvl != "" {
		return atom
	}
	return zap.NewAtomicLevelAt(zap.InfoLevel)
}

type contextKey int

var loggerKey = contextKey(0)

func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func LoggerFromContext(ctx context.Context) (*zap.Logger, error) {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger, nil
	}

	return nil, ErrNoLoggerInContext
}

// FromContext is LoggerFromContext with a no-op fallback.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, err := LoggerFromContext(ctx); err == nil {
		return logger
	}
	return zap.NewNop()
}
