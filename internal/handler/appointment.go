package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/service"
)

// Appointments is implemented by *service.AppointmentService.
type Appointments interface {
	Book(ctx context.Context, req service.BookRequest) (*model.AppointmentDetail, error)
	Get(ctx context.Context, viewer uint64, id string) (*model.AppointmentDetail, error)
	ListForCustomer(ctx context.Context, userID uint64) ([]model.AppointmentDetail, error)
	ListForBusiness(ctx context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error)
	Cancel(ctx context.Context, userID uint64, id string) (*model.AppointmentDetail, error)
	Delete(ctx context.Context, userID uint64, id string) error
}

type AppointmentHandler struct {
	Svc Appointments
	Log *zap.Logger
}

func NewAppointmentHandler(svc Appointments, log *zap.Logger) *AppointmentHandler {
	return &AppointmentHandler{Svc: svc, Log: log}
}

type bookReq struct {
	TimeslotID uint64 `json:"timeslot_id"`
	ServiceID  uint64 `json:"service_id"`
	PricingID  uint64 `json:"pricing_id"`
}

// Book holds a timeslot for the caller.  409 when the slot is taken.
func (h *AppointmentHandler) Book(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	d, err := h.Svc.Book(c.Request().Context(), service.BookRequest{
		UserID: uid, TimeslotID: req.TimeslotID, ServiceID: req.ServiceID, PricingID: req.PricingID,
	})
	if err != nil {
		return writeError(c, h.Log, "appointment.Book", err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *AppointmentHandler) ListMine(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	items, err := h.Svc.ListForCustomer(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, h.Log, "appointment.ListMine", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListForBusiness lists appointments against the caller's services,
// optionally filtered by ?status=.
func (h *AppointmentHandler) ListForBusiness(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	status := model.AppointmentStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))))
	items, err := h.Svc.ListForBusiness(c.Request().Context(), uid, status)
	if err != nil {
		return writeError(c, h.Log, "appointment.ListForBusiness", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *AppointmentHandler) Get(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	d, err := h.Svc.Get(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "appointment.Get", err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *AppointmentHandler) Cancel(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	d, err := h.Svc.Cancel(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "appointment.Cancel", err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *AppointmentHandler) Delete(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.Svc.Delete(c.Request().Context(), uid, c.Param("id")); err != nil {
		return writeError(c, h.Log, "appointment.Delete", err)
	}
	return c.NoContent(http.StatusNoContent)
}
