// Package natsadapter carries the cross-context message protocol over core
// NATS. The boundary is deliberately fire-and-forget: no JetStream, no acks,
// no ordering — the overlay side pairs every awaited response with a timeout.
package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "overlay."

// Bus implements ports.MessageBus over a NATS connection.
type Bus struct {
	conn *nats.Conn
}

// New connects to NATS and returns a Bus.
func New(url string) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Bus{conn: conn}, nil
}

// Publish sends one message kind, fire-and-forget.
func (b *Bus) Publish(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	return b.conn.Publish(subjectPrefix+kind, data)
}

// Subscribe registers a handler for one message kind and returns an
// unsubscribe function.
func (b *Bus) Subscribe(kind string, handler func(data []byte)) (func(), error) {
	sub, err := b.conn.Subscribe(subjectPrefix+kind, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", kind, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Conn exposes the underlying connection for health checks.
func (b *Bus) Conn() *nats.Conn { return b.conn }

// Close drains and closes the connection.
func (b *Bus) Close() {
	_ = b.conn.Drain()
}
