// Package router registers the HTTP API on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/easybook/internal/handler"
	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
)

// RegisterRoutes registers the probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// authenticated profile endpoints under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleBusiness),
	)
	auth.GET("/me", a.Me)
	auth.POST("/logout", a.Logout)
}

// RegisterPublic registers unauthenticated routes.  Catalog reads go
// through cache; the payment callbacks never do.
func RegisterPublic(e *echo.Echo, cat *handler.CatalogHandler, pay *handler.PaymentHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.GET("/services", cat.ListServices, cache)
	g.GET("/services/:id", cat.GetService, cache)
	g.GET("/services/:id/pricing", cat.ListPricing, cache)
	g.GET("/businesses/:id/timeslots", cat.AvailableTimeslots, cache)

	g.GET("/payments/verify", pay.Verify)
	g.POST("/payments/webhook", pay.Webhook)
}

// RegisterAppointments registers the routes both roles share.  Ownership is
// checked by the service.
func RegisterAppointments(e *echo.Echo, a *handler.AppointmentHandler, p *handler.PaymentHandler, n *handler.NotificationHandler, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleBusiness),
	)
	g.GET("/appointments/:id", a.Get)
	g.GET("/appointments/:id/payments", p.History)
	g.GET("/notifications", n.List)
	g.GET("/notifications/preferences", n.GetPreferences)
	g.PUT("/notifications/preferences", n.UpdatePreferences)
}
