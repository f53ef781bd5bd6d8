// Command overlayd runs the overlay side: it listens to the page-context
// locator over NATS, keeps the viewport bridge current, renders the transit
// overlay, and serves it over HTTP and WebSocket.
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
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/transitlens/transitlens/internal/adapters/http"
	natsadapter "github.com/transitlens/transitlens/internal/adapters/nats"
	"github.com/transitlens/transitlens/internal/adapters/valkey"
	"github.com/transitlens/transitlens/internal/core/usecases"
	"github.com/transitlens/transitlens/internal/geodata"
	"github.com/transitlens/transitlens/internal/pkg/config"
	"github.com/transitlens/transitlens/internal/pkg/logging"
	"github.com/transitlens/transitlens/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("transitlens-overlayd")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup(logLevel, "json", "overlayd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Message bus to the page context
	bus, err := natsadapter.New(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer bus.Close()

	// Settings store
	store, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer store.Close()

	// Transit geometry (embedded)
	geometry := geodata.NewSource()

	// Use cases
	bridge := usecases.NewBridgeService(bus,
		usecases.WithProjectionTimeout(cfg.Overlay.ProjectionTimeout()))
	renderer := usecases.NewRenderService(geometry, bridge)
	scheduler := usecases.NewSchedulerService(bus, renderer.Render,
		usecases.WithMinRenderSpacing(cfg.Overlay.RenderMinSpacing()))

	if err := bridge.Start(ctx); err != nil {
		log.Fatalf("bridge: %v", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	// Seed settings from the store and follow changes made by other replicas
	if settings, err := store.Load(ctx); err != nil {
		slog.Warn("settings load failed, using defaults", "error", err)
	} else {
		scheduler.UpdateSettings(settings)
	}
	go func() {
		if err := store.Watch(ctx, scheduler.UpdateSettings); err != nil && ctx.Err() == nil {
			slog.Warn("settings watch ended", "error", err)
		}
	}()

	deps := &http.Dependencies{
		Render:    renderer,
		Scheduler: scheduler,
		Bridge:    bridge,
		Settings:  store,
		Geometry:  geometry,
		NATS:      bus.Conn(),
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    256 * 1024, // settings payloads are tiny
		AppName:      "TransitLens Overlay",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("overlay server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
