package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/ticket-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/ticket-dispatch/internal/auth"
	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Missions       *handlers.MissionsHandler
	Tickets        *handlers.TicketsHandler
	Assignments    *handlers.AssignmentsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))

	api := app.Group("/api", cfg.AuthMiddleware.Handle)
	read := auth.RequireRole(domain.RoleViewer)
	write := auth.RequireRole(domain.RoleDispatcher)

	api.Post("/jql/validate", read, cfg.Missions.ValidateJQL)
	api.Post("/jql/preview", read, cfg.Missions.PreviewJQL)

	missions := api.Group("/missions")
	missions.Get("", read, cfg.Missions.List)
	missions.Post("", write, cfg.Missions.Create)
	missions.Get("/:id", read, cfg.Missions.Get)
	missions.Put("/:id/query", write, cfg.Missions.SaveQuery)
	missions.Post("/:id/tickets/fetch", write, cfg.Missions.FetchTickets)
	missions.Get("/:id/tickets", read, cfg.Tickets.List)
	missions.Get("/:id/tickets/:ticketId/history", read, cfg.Tickets.History)
	missions.Post("/:id/analyze", write, cfg.Missions.Analyze)
	missions.Put("/:id/selection", write, cfg.Tickets.UpdateSelection)
	missions.Post("/:id/assign", write, cfg.Assignments.Assign)
	missions.Get("/:id/assignments", read, cfg.Assignments.Results)
}
