package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-service/internal/api/http/handlers"
	"github.com/spec-kit/incident-service/internal/auth"
	"github.com/spec-kit/incident-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Incidents      *handlers.IncidentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	incidents := app.Group("/incidents", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.OperatorRoleAgent, domain.OperatorRoleAdmin))
	incidents.Post("", cfg.Incidents.CreateIncident)
	incidents.Post("/batch", cfg.Incidents.CreateIncidentBatch)
	incidents.Get("/:ticket_number", cfg.Incidents.GetIncident)

	admins := app.Group("/counters", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.OperatorRoleAdmin))
	admins.Get("", cfg.Incidents.ListCounters)
}
