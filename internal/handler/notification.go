package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationStore is implemented by *repository.NotificationRepo.
type NotificationStore interface {
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Notification, error)
}

// PreferenceStore is implemented by *repository.PreferenceRepo.
type PreferenceStore interface {
	Get(ctx context.Context, userID uint64) (*model.NotificationPreference, error)
	Upsert(ctx context.Context, p *model.NotificationPreference) error
}

type NotificationHandler struct {
	Repo  NotificationStore
	Prefs PreferenceStore
	Log   *zap.Logger
}

func NewNotificationHandler(repo NotificationStore, prefs PreferenceStore, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Repo: repo, Prefs: prefs, Log: log}
}

// List returns the caller's latest notifications.  ?limit is clamped to
// [1, 100].
func (h *NotificationHandler) List(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	limit := defaultNotificationLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest(c, "limit must be a positive integer")
		}
		limit = min(n, maxNotificationLimit)
	}
	items, err := h.Repo.ListByUser(c.Request().Context(), uid, limit)
	if err != nil {
		return writeError(c, h.Log, "notification.List", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetPreferences returns the caller's email preference.  Users registered
// before preferences existed read as enabled with no override.
func (h *NotificationHandler) GetPreferences(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	p, err := h.Prefs.Get(c.Request().Context(), uid)
	if errors.Is(err, apperr.ErrNotFound) {
		return c.JSON(http.StatusOK, model.NotificationPreference{UserID: uid, EmailEnabled: true})
	}
	if err != nil {
		return writeError(c, h.Log, "notification.GetPreferences", err)
	}
	return c.JSON(http.StatusOK, p)
}

type preferenceReq struct {
	EmailEnabled *bool  `json:"email_enabled"`
	Email        string `json:"email"`
}

// UpdatePreferences replaces the caller's email preference.  An empty email
// clears the override.
func (h *NotificationHandler) UpdatePreferences(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req preferenceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.EmailEnabled == nil {
		return badRequest(c, "email_enabled is required")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" && !strings.Contains(email, "@") {
		return badRequest(c, "invalid email")
	}
	p := &model.NotificationPreference{UserID: uid, EmailEnabled: *req.EmailEnabled, Email: email}
	if err := h.Prefs.Upsert(c.Request().Context(), p); err != nil {
		return writeError(c, h.Log, "notification.UpdatePreferences", err)
	}
	return c.JSON(http.StatusOK, p)
}
