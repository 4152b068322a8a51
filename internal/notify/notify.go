// Package notify defines the fire-and-forget notification surface the cart
// engine raises toward the presentation layer. The engine never depends on
// delivery succeeding.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind classifies a notification for presentation.
type Kind string

const (
	// KindSuccess marks confirmations (item added, cart cleared).
	KindSuccess Kind = "success"
	// KindError marks failures surfaced with an error affordance.
	KindError Kind = "error"
	// KindInfo marks neutral notices.
	KindInfo Kind = "info"
)

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, title, message string, duration time.Duration)
}

// Nop discards every notification.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Kind, string, string, time.Duration) {}

// Log writes notifications to a structured logger; the default sink when no
// UI surface is attached.
type Log struct {
	logger *zap.Logger
}

// NewLog constructs a logger-backed notifier.
func NewLog(logger *zap.Logger) Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Log{logger: logger}
}

// Notify implements Notifier.
func (l Log) Notify(_ context.Context, kind Kind, title, message string, duration time.Duration) {
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("title", title),
		zap.Duration("duration", duration),
	}
	if kind == KindError {
		l.logger.Warn(message, fields...)
		return
	}
	l.logger.Info(message, fields...)
}
