package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": "dev",
		})
	}
}

// ReadyHandler checks NATS and settings-store connectivity.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allOK := true

		// NATS
		if deps.NATS != nil {
			if deps.NATS.IsConnected() {
				checks["nats"] = "ok"
			} else {
				checks["nats"] = "disconnected"
				allOK = false
			}
		} else {
			checks["nats"] = "not configured"
			allOK = false
		}

		// Settings store
		if deps.Settings != nil {
			if _, err := deps.Settings.Load(ctx); err != nil {
				checks["settings"] = "error: " + err.Error()
				allOK = false
			} else {
				checks["settings"] = "ok"
			}
		} else {
			checks["settings"] = "not configured"
		}

		// Transit geometry
		if deps.Geometry != nil {
			if _, err := deps.Geometry.Load(ctx); err != nil {
				checks["geometry"] = "error: " + err.Error()
				allOK = false
			} else {
				checks["geometry"] = "ok"
			}
		} else {
			checks["geometry"] = "not configured"
		}

		status := "ready"
		code := 200
		if !allOK {
			status = "not ready"
			code = 503
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
