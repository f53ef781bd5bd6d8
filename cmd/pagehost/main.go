// Command pagehost runs the page side: it accepts WebSocket sessions from
// the in-page shim, runs the host-map discovery strategies against each
// session's page state, and relays viewports and projections to the overlay
// side over NATS.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"

	natsadapter "github.com/transitlens/transitlens/internal/adapters/nats"
	"github.com/transitlens/transitlens/internal/adapters/shim"
	"github.com/transitlens/transitlens/internal/core/ports"
	"github.com/transitlens/transitlens/internal/core/usecases"
	"github.com/transitlens/transitlens/internal/pkg/config"
	"github.com/transitlens/transitlens/internal/pkg/logging"
	"github.com/transitlens/transitlens/internal/pkg/metrics"
	"github.com/transitlens/transitlens/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("transitlens-pagehost")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json", "pagehost")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	bus, err := natsadapter.New(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer bus.Close()

	hub := shim.NewHub(bus, func(probe ports.PageProbe) shim.Runner {
		return usecases.NewLocatorService(bus, probe,
			usecases.WithDiscoveryInterval(cfg.Discovery.PollInterval()),
			usecases.WithMaxAttempts(cfg.Discovery.MaxAttempts),
			usecases.WithURLPollInterval(cfg.Discovery.URLPollInterval()),
		)
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		AppName:      "TransitLens Page Host",
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Get("/metrics", metrics.Handler())

	app.Use("/shim", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/shim", websocket.New(hub.Handler()))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("page host starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("page host stopped")
}
