package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/etala/case-service/internal/api/http/handlers"
	"github.com/etala/case-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Reports        *handlers.ReportsHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}

	reports := app.Group("/reports", authenticated...)
	reports.Post("/", cfg.Reports.Create)
	reports.Get("/mine", cfg.Reports.ListMine)
	reports.Get("/:id", cfg.Reports.Get)

	tickets := app.Group("/tickets", authenticated...)
	tickets.Post("/", cfg.Tickets.Open)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:ticketNumber", cfg.Tickets.Get)
	tickets.Post("/:ticketNumber/messages", cfg.Tickets.SendMessage)
	tickets.Get("/:ticketNumber/messages", cfg.Tickets.ListMessages)
	tickets.Post("/:ticketNumber/read", cfg.Tickets.MarkAllRead)

	messages := app.Group("/messages", authenticated...)
	messages.Post("/:id/read", cfg.Tickets.MarkRead)

	staff := app.Group("/staff", append(authenticated, auth.RequireStaff())...)
	staff.Get("/reports", cfg.Reports.ListActive)
	staff.Get("/reports/archived", cfg.Reports.ListArchived)
	staff.Get("/reports/by-ticket/:ticketNumber", cfg.Reports.GetByTicketNumber)
	staff.Patch("/reports/:id/status", cfg.Reports.UpdateStatus)
	staff.Patch("/reports/:id/case-status", cfg.Reports.UpdateCaseStatus)
	staff.Post("/reports/:id/referrals", cfg.Reports.AddReferral)
	staff.Post("/reports/:id/archive", cfg.Reports.Archive)
	staff.Post("/reports/:id/restore", cfg.Reports.Restore)
	staff.Get("/tickets", cfg.Tickets.List)
	staff.Post("/tickets/:ticketNumber/close", cfg.Tickets.Close)
}
