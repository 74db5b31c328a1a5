package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// RegisterHealthRoutes wires liveness and readiness probes. Readiness reports
// the two dependencies a batch run needs: the reminder store and the
// rate-limiter backend.
func RegisterHealthRoutes(app *fiber.App, store *sql.DB, limiter *redis.Client) {
	app.Get("/livez", LivezHandler)
	app.Get("/readyz", ReadyzHandler(store, limiter))
}

func LivezHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// ReadyzHandler answers 503 while either dependency is down. Dispatch is
// pointless without the store, and without the limiter every send would be
// skipped, so both gate readiness.
func ReadyzHandler(store *sql.DB, limiter *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		checks := fiber.Map{
			"reminderStore": "ok",
			"rateLimiter":   "ok",
		}
		ready := true

		if err := store.PingContext(ctx); err != nil {
			checks["reminderStore"] = err.Error()
			ready = false
		}
		if err := limiter.Ping(ctx).Err(); err != nil {
			checks["rateLimiter"] = err.Error()
			ready = false
		}

		status := fiber.StatusOK
		if !ready {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"ready":  ready,
			"checks": checks,
		})
	}
}
