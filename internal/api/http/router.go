package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/api/http/handlers"
	"github.com/spec-kit/support-router/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Events         *handlers.EventsHandler
	Sessions       *handlers.SessionsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Role checks are attached per route since
// group middleware in fiber applies to the whole prefix.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/auth/token", cfg.Auth.Token)

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)

	adapter := auth.RequireAdapter()
	v1.Post("/help", adapter, cfg.Events.RequestHelp)
	v1.Post("/claim", adapter, cfg.Events.Claim)
	v1.Post("/messages", adapter, cfg.Events.Message)
	v1.Post("/end", adapter, cfg.Events.End)
	v1.Post("/commands", adapter, cfg.Events.Command)

	operator := auth.RequireOperator()
	v1.Post("/sessions/sweep", operator, cfg.Sessions.Sweep)
	v1.Get("/sessions/:ticket", operator, cfg.Sessions.GetSession)
	v1.Post("/sessions/:ticket/reply", operator, cfg.Sessions.Reply)
}
