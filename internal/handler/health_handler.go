package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// ProviderLister reports the notification types that currently have a provider.
type ProviderLister interface {
	Providers() []string
}

// RegisterHealthRoutes mounts probe endpoints. rdb may be nil when rate
// limiting is disabled, in which case readiness does not depend on redis.
func RegisterHealthRoutes(app fiber.Router, providers ProviderLister, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(providers, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(providers ProviderLister, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		checks := fiber.Map{}
		ready := true

		if rdb != nil {
			ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
			defer cancel()

			redisStatus := "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "down"
				ready = false
			}
			checks["redis"] = redisStatus
		}

		registered := []string{}
		if providers != nil {
			if types := providers.Providers(); len(types) > 0 {
				registered = types
			}
		}
		providerStatus := "ok"
		if len(registered) == 0 {
			providerStatus = "none"
			ready = false
		}
		checks["providers"] = providerStatus

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status":    status,
			"checks":    checks,
			"providers": registered,
		})
	}
}
