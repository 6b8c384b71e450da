package log

import (
	"context"
	"errors"
	"log/slog"

	"github.com/blogle/dojo-sub001/internal/core"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts the logger stored by WithContext, or wraps the
// default slog logger when there is none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// ErrorType classifies err for the error_type log field.
func ErrorType(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeInternal
	}
	switch core.KindOf(err) {
	case core.KindValidation:
		return ErrorTypeValidation
	case core.KindConflict:
		return ErrorTypeConflict
	case core.KindNotFound:
		return ErrorTypeNotFound
	case core.KindInsufficientFunds:
		return ErrorTypeInsufficientFunds
	default:
		return ErrorTypeDatabase
	}
}

// LogMutation records a committed ledger mutation at Info.
func (l *Logger) LogMutation(ctx context.Context, msg, operation string, fields LogFields) {
	l.InfoContext(ctx, msg, fields.WithOperation(operation).ToSlice()...)
}

// LogFailure records a rejected or failed mutation. Caller mistakes log at
// Warn; storage failures log at Error.
func (l *Logger) LogFailure(ctx context.Context, msg, operation string, err error, fields LogFields) {
	errorType := ErrorType(err)
	fields = fields.
		WithError(err).
		WithErrorType(errorType, core.CodeOf(err)).
		WithOperation(operation)

	if errorType == ErrorTypeDatabase || errorType == ErrorTypeInternal {
		l.ErrorContext(ctx, msg, fields.ToSlice()...)
		return
	}
	l.WarnContext(ctx, msg, fields.ToSlice()...)
}
