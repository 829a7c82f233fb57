package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp builds the fiber application with all trigger and execution routes.
func NewApp(handlers *Handlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowgrid")
	})

	w := app.Group("/workflows")
	w.Post("/:id/triggers/manual", handlers.TriggerManual)
	w.Post("/:id/triggers/webhook", handlers.TriggerWebhook)
	w.Get("/:id/triggers", handlers.TriggerStatus)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/nodes/:nodeId/resume", handlers.ResumeNode)

	app.Post("/github/events", handlers.GitHubEvents)
	app.Post("/email/messages", handlers.EmailMessages)
	app.Post("/callbacks/:key", handlers.ExternalCallback)

	app.Get("/health", handlers.HealthCheck)

	return app
}
