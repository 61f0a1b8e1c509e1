package log

import (
	"context"
	"os"

	"go.uber.org/zap"
)

type loggerKey struct{}

var defaultLogger *zap.Logger

func init() {
	var err error
	if os.Getenv("DEBUG") != "" {
		defaultLogger, err = zap.NewDevelopment()
	} else {
		defaultLogger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
}

// Logger returns the logger attached to ctx, or the default logger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a context whose logger carries the given field.
func With(ctx context.Context, key string, value interface{}) context.Context {
	return context.WithValue(ctx, loggerKey{}, Logger(ctx).With(zap.Any(key, value)))
}

// Fatal logs the message with the default logger and exits.
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}
