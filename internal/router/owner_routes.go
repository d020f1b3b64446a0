package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/easybook/internal/handler"
	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
)

// BusinessHandlers groups what the business routes need.
type BusinessHandlers struct {
	Catalog      *handler.CatalogHandler
	Appointments *handler.AppointmentHandler
	Payments     *handler.PaymentHandler
	Settlement   *handler.SettlementHandler
}

// RegisterBusiness registers BUSINESS-scoped endpoints under /v1.
func RegisterBusiness(e *echo.Echo, h BusinessHandlers, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleBusiness),
	)

	// ---- Catalog ----
	g.POST("/services", h.Catalog.CreateService)
	g.POST("/services/:id/pricing", h.Catalog.CreatePricing)
	g.PATCH("/pricing/:id", h.Catalog.UpdatePricing)
	g.POST("/timeslots", h.Catalog.CreateTimeslot)

	// ---- Appointments and payments ----
	g.GET("/business/appointments", h.Appointments.ListForBusiness)
	g.POST("/payments/:reference/refund", h.Payments.Refund, limit)

	// ---- Settlement ----
	g.POST("/settlement/subaccount", h.Settlement.Setup, limit)
	g.GET("/settlement/subaccount", h.Settlement.Get)
}
