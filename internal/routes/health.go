package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/settlement/internal/ledger"
)

// healthCheck probes one dependency.
type healthCheck func(ctx context.Context) error

// RegisterHealthRoutes adds a liveness probe and a readiness probe that
// checks every backing store the ledger depends on.
func RegisterHealthRoutes(app *fiber.App, d Deps, store ledger.Store) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":    "ok",
			"app":       d.Cfg.AppName,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	checks := map[string]healthCheck{}
	if d.DB != nil {
		checks["postgres"] = func(ctx context.Context) error { return d.DB.Ping(ctx) }
	}
	if d.Cache != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() }
	}
	if d.Cfg.FeeSinkAccount != "" {
		checks["ledger"] = func(ctx context.Context) error {
			_, err := store.Account(ctx, d.Cfg.FeeSinkAccount)
			return err
		}
	}

	app.Get("/readyz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := fiber.Map{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    report,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
