package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Stream         *handlers.StreamHandler
	AuthMiddleware *auth.AuthMiddleware
	// RateLimiter guards the credential endpoints. Optional.
	RateLimiter fiber.Handler
	// Metrics serves /metrics when set.
	Metrics fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	authGroup := app.Group("/auth")
	credentials := []fiber.Handler{}
	if cfg.RateLimiter != nil {
		credentials = append(credentials, cfg.RateLimiter)
	}
	authGroup.Post("/register", append(credentials, cfg.Users.Register)...)
	authGroup.Post("/login", append(credentials, cfg.Users.Login)...)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Users.Logout)

	// Authentication is attached per route rather than with Use on the group,
	// so unknown paths under /tickets still fall through to the 404 handler.
	authn := cfg.AuthMiddleware.Handle
	tickets := app.Group("/tickets")
	if cfg.Stream != nil {
		tickets.Get("/:id/stream", cfg.AuthMiddleware.HandleStream, cfg.Stream.Upgrade)
	}
	tickets.Post("/", authn, cfg.Tickets.CreateTicket)
	tickets.Get("/", authn, cfg.Tickets.ListTickets)
	tickets.Get("/all", authn, auth.RequireAdmin(), cfg.Tickets.ListAllTickets)
	tickets.Get("/:id", authn, cfg.Tickets.GetTicket)
	tickets.Put("/:id/reply", authn, cfg.Tickets.ReplyToTicket)
	tickets.Put("/:id/status", authn, cfg.Tickets.UpdateTicketStatus)
}
