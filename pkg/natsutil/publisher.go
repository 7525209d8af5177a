package natsutil

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publisher is a nil-safe wrapper around an optional NATS connection.
// The engine publishes audit events through it; when no broker is configured
// the publisher is constructed with a nil connection and every publish is a
// no-op. Publish failures are logged, never propagated: events are
// best-effort observability, not part of the consistency unit.
type Publisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewPublisher creates a Publisher. nc may be nil.
func NewPublisher(nc *nats.Conn, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: nc, logger: logger}
}

// Publish emits v as JSON on subject, carrying trace context.
func (p *Publisher) Publish(ctx context.Context, subject string, v any) {
	if p == nil || p.nc == nil {
		return
	}
	if err := Publish(ctx, p.nc, subject, v); err != nil {
		p.logger.Warn("event publish failed", "subject", subject, "err", err)
	}
}
