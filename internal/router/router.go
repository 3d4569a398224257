// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-gate/internal/auth"
	"github.com/iliyamo/event-gate/internal/handler"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/middleware"
	"github.com/iliyamo/event-gate/internal/model"
	"github.com/iliyamo/event-gate/internal/ratelimit"
)

// Deps are the components the routes are built from. Limiter may be nil
// to disable rate limiting.
type Deps struct {
	Limiter *ratelimit.Limiter
	Tokens  auth.Verifier
	Gate    *auth.Gate
	Logger  *logger.Logger
	DB      handler.Pinger

	Auth    *handler.AuthHandler
	Tickets *handler.TicketHandler
	CheckIn *handler.CheckInHandler
}

// Register installs the rate limiter and the authentication gate for
// every route, then the routes themselves. Access rules live only on the
// groups below.
func Register(e *echo.Echo, d Deps) {
	e.Use(middleware.RateLimit(d.Limiter, d.Tokens, d.Logger))
	e.Use(middleware.Authenticate(d.Gate))

	e.GET("/healthz", handler.Health(d.DB))

	// session-less account operations
	a := e.Group("/v1/auth")
	a.POST("/register", d.Auth.Register)
	a.POST("/login", d.Auth.Login)
	a.POST("/refresh", d.Auth.Refresh)
	a.POST("/password-reset", d.Auth.PasswordReset)
	a.POST("/logout", d.Auth.Logout, middleware.RequireAuth())

	e.GET("/v1/me", d.Auth.Me, middleware.RequireAuth())

	admin := e.Group("/v1/admin", middleware.RequireRole(model.RoleAdmin))
	admin.POST("/revocations", d.Auth.AdminRevoke)

	customer := e.Group("/v1", middleware.RequireRole(model.RoleCustomer))
	customer.POST("/events/:id/tickets", d.Tickets.Reserve)
	customer.GET("/tickets/:id", d.Tickets.Get)
	customer.DELETE("/tickets/:id", d.Tickets.Cancel)

	// payment confirmation comes from the payment side, never the buyer
	e.POST("/v1/tickets/:id/pay", d.Tickets.Pay, middleware.RequireRole(model.RoleAdmin))

	e.POST("/v1/events/:id/check-in", d.CheckIn.CheckIn, middleware.RequireRole(model.RoleStaff, model.RoleOwner))
}
