package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/easybook/internal/handler"
	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
)

// RegisterCustomer registers booking and checkout under /v1.  All routes
// require the CUSTOMER role; the writes are rate limited.
func RegisterCustomer(e *echo.Echo, a *handler.AppointmentHandler, p *handler.PaymentHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer),
	)
	g.POST("/appointments", a.Book, limit)
	g.GET("/appointments", a.ListMine)
	g.POST("/appointments/:id/cancel", a.Cancel, limit)
	g.DELETE("/appointments/:id", a.Delete, limit)
	g.POST("/appointments/:id/payments", p.Initialize, limit)
}
