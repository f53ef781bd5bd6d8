package shim

import (
	"context"
	"log/slog"

	"github.com/gofiber/websocket/v2"

	"github.com/transitlens/transitlens/internal/core/domain"
	"github.com/transitlens/transitlens/internal/core/ports"
)

// Hub ties shim WebSocket sessions to the locator. Each connected page gets
// its own probe and its own locator run; the run ends when the page goes away.
type Hub struct {
	bus        ports.MessageBus
	newLocator func(probe ports.PageProbe) Runner
}

// Runner is the locator-side lifecycle the hub drives per session.
type Runner interface {
	Run(ctx context.Context) error
}

// NewHub creates a Hub. newLocator builds one locator per page session.
func NewHub(bus ports.MessageBus, newLocator func(probe ports.PageProbe) Runner) *Hub {
	return &Hub{bus: bus, newLocator: newLocator}
}

// Handler returns the fiber websocket handler for shim connections.
func (h *Hub) Handler() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		probe := newProbe(conn)
		slog.Info("shim session connected", "remote", conn.RemoteAddr())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		loc := h.newLocator(probe)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := loc.Run(ctx); err != nil {
				slog.Warn("locator run ended", "error", err)
			}
		}()

		// A constructor capture means a map object appeared after the last
		// pass; rerun discovery immediately instead of waiting out the poll.
		probe.serve(func() {
			if err := h.bus.Publish(ctx, domain.MsgRediscover, struct{}{}); err != nil {
				slog.Warn("rediscover publish failed", "error", err)
			}
		})

		cancel()
		<-done
		slog.Info("shim session closed", "remote", conn.RemoteAddr())
	}
}
