package http

import (
	"github.com/nats-io/nats.go"

	"github.com/transitlens/transitlens/internal/core/ports"
	"github.com/transitlens/transitlens/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Render    *usecases.RenderService
	Scheduler *usecases.SchedulerService
	Bridge    *usecases.BridgeService
	Settings  ports.SettingsStore
	Geometry  ports.GeometrySource
	NATS      *nats.Conn
}
