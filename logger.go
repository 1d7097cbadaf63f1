package typedkv

import (
	"context"

	"github.com/rs/zerolog"
)

// Logger receives the store's lifecycle and failure messages.
// Implementations must be safe for concurrent use.
type Logger interface {
	// Info logs connect and close events
	Info(ctx context.Context, format string, args ...interface{})

	// Warn logs recoverable problems
	Warn(ctx context.Context, format string, args ...interface{})

	// Error logs failed operations before they are returned
	Error(ctx context.Context, format string, args ...interface{})

	// Debug logs diagnostic messages
	Debug(ctx context.Context, format string, args ...interface{})
}

// noopLogger is the default Logger; it drops everything.
type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Warn(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Error(ctx context.Context, format string, args ...interface{}) {}
func (noopLogger) Debug(ctx context.Context, format string, args ...interface{}) {}

var defaultLogger Logger = noopLogger{}

// NewZerologLogger adapts a zerolog logger. A logger attached to ctx with
// zerolog's WithContext takes precedence over l.
func NewZerologLogger(l zerolog.Logger) Logger {
	return zerologLogger{l: l}
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z zerologLogger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if cl := zerolog.Ctx(ctx); cl != nil && cl != zerolog.DefaultContextLogger && cl.GetLevel() != zerolog.Disabled {
			return cl
		}
	}
	return &z.l
}

func (z zerologLogger) Info(ctx context.Context, format string, args ...interface{}) {
	z.from(ctx).Info().Msgf(format, args...)
}

func (z zerologLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	z.from(ctx).Warn().Msgf(format, args...)
}

func (z zerologLogger) Error(ctx context.Context, format string, args ...interface{}) {
	z.from(ctx).Error().Msgf(format, args...)
}

func (z zerologLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	z.from(ctx).Debug().Msgf(format, args...)
}
