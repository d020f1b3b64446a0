package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
)

// CatalogStore is implemented by *repository.CatalogRepo.
type CatalogStore interface {
	CreateService(ctx context.Context, s *model.Service) error
	GetService(ctx context.Context, id uint64) (*model.Service, error)
	ListServices(ctx context.Context, businessID uint64) ([]model.Service, error)
	CreatePricing(ctx context.Context, p *model.Pricing) error
	GetPricing(ctx context.Context, id uint64) (*model.Pricing, error)
	ListPricing(ctx context.Context, serviceID uint64) ([]model.Pricing, error)
	UpdatePrice(ctx context.Context, id uint64, price model.Money, description string) error
	CreateTimeslot(ctx context.Context, t *model.Timeslot) error
	AvailableTimeslots(ctx context.Context, businessID uint64, from, to time.Time) ([]model.Timeslot, error)
}

// Availability windows: default and maximum span of one listing.
const (
	defaultWindow = 14 * 24 * time.Hour
	maxWindow     = 62 * 24 * time.Hour
)

// CatalogHandler serves the public catalog and lets businesses maintain
// their services, prices and timeslots.
type CatalogHandler struct {
	Repo     CatalogStore
	Currency string // used when a price omits its currency
	Log      *zap.Logger
	now      func() time.Time
}

func NewCatalogHandler(repo CatalogStore, currency string, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{Repo: repo, Currency: currency, Log: log, now: time.Now}
}

// ----- public -----

// ListServices lists services, optionally of one ?business_id=.
func (h *CatalogHandler) ListServices(c echo.Context) error {
	var businessID uint64
	if raw := strings.TrimSpace(c.QueryParam("business_id")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return badRequest(c, "invalid business_id")
		}
		businessID = n
	}
	items, err := h.Repo.ListServices(c.Request().Context(), businessID)
	if err != nil {
		return writeError(c, h.Log, "catalog.ListServices", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func (h *CatalogHandler) GetService(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid service id")
	}
	s, err := h.Repo.GetService(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, "catalog.GetService", err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *CatalogHandler) ListPricing(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid service id")
	}
	ctx := c.Request().Context()
	if _, err := h.Repo.GetService(ctx, id); err != nil {
		return writeError(c, h.Log, "catalog.ListPricing", err)
	}
	items, err := h.Repo.ListPricing(ctx, id)
	if err != nil {
		return writeError(c, h.Log, "catalog.ListPricing", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// AvailableTimeslots lists the business's free slots in [from, to).  Both
// bounds are RFC 3339; from defaults to now and to to from plus two weeks.
func (h *CatalogHandler) AvailableTimeslots(c echo.Context) error {
	businessID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid business id")
	}
	now := h.now().UTC()
	from, err := parseTimeParam(c.QueryParam("from"), now)
	if err != nil {
		return badRequest(c, "from must be RFC 3339")
	}
	if from.Before(now) {
		from = now
	}
	to, err := parseTimeParam(c.QueryParam("to"), from.Add(defaultWindow))
	if err != nil {
		return badRequest(c, "to must be RFC 3339")
	}
	if !to.After(from) || to.Sub(from) > maxWindow {
		return badRequest(c, "to must be after from and within 62 days")
	}
	items, err := h.Repo.AvailableTimeslots(c.Request().Context(), businessID, from, to)
	if err != nil {
		return writeError(c, h.Log, "catalog.AvailableTimeslots", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

func parseTimeParam(raw string, def time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ----- business -----

type serviceReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *CatalogHandler) CreateService(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req serviceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	s := &model.Service{BusinessID: uid, Name: strings.TrimSpace(req.Name), Description: strings.TrimSpace(req.Description)}
	if s.Name == "" {
		return badRequest(c, "name is required")
	}
	if err := h.Repo.CreateService(c.Request().Context(), s); err != nil {
		return writeError(c, h.Log, "catalog.CreateService", err)
	}
	return c.JSON(http.StatusCreated, s)
}

type pricingReq struct {
	Price       *model.Money `json:"price"`
	Currency    string       `json:"currency"`
	Description string       `json:"description"`
}

func (r pricingReq) validPrice() bool {
	return r.Price != nil && r.Price.IsPositive() && r.Price.Equal(r.Price.Round(2))
}

// CreatePricing adds a price option to one of the caller's services.
func (h *CatalogHandler) CreatePricing(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	serviceID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid service id")
	}
	var req pricingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if !req.validPrice() {
		return badRequest(c, "price must be positive with at most two decimals")
	}
	ctx := c.Request().Context()
	if err := h.ownService(ctx, uid, serviceID); err != nil {
		return writeError(c, h.Log, "catalog.CreatePricing", err)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = h.Currency
	}
	p := &model.Pricing{ServiceID: serviceID, Price: *req.Price, Currency: currency, Description: strings.TrimSpace(req.Description)}
	if err := h.Repo.CreatePricing(ctx, p); err != nil {
		return writeError(c, h.Log, "catalog.CreatePricing", err)
	}
	return c.JSON(http.StatusCreated, p)
}

// UpdatePricing changes a price.  409 once a payment has used it.
func (h *CatalogHandler) UpdatePricing(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid pricing id")
	}
	var req pricingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if !req.validPrice() {
		return badRequest(c, "price must be positive with at most two decimals")
	}
	ctx := c.Request().Context()
	p, err := h.Repo.GetPricing(ctx, id)
	if err != nil {
		return writeError(c, h.Log, "catalog.UpdatePricing", err)
	}
	if err := h.ownService(ctx, uid, p.ServiceID); err != nil {
		return writeError(c, h.Log, "catalog.UpdatePricing", err)
	}
	if err := h.Repo.UpdatePrice(ctx, id, *req.Price, strings.TrimSpace(req.Description)); err != nil {
		return writeError(c, h.Log, "catalog.UpdatePricing", err)
	}
	p, err = h.Repo.GetPricing(ctx, id)
	if err != nil {
		return writeError(c, h.Log, "catalog.UpdatePricing", err)
	}
	return c.JSON(http.StatusOK, p)
}

type timeslotReq struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// CreateTimeslot publishes a future window for the calling business.
func (h *CatalogHandler) CreateTimeslot(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req timeslotReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.StartsAt.IsZero() || !req.EndsAt.After(req.StartsAt) {
		return badRequest(c, "starts_at and ends_at required, ends_at after starts_at")
	}
	if !req.StartsAt.After(h.now()) {
		return badRequest(c, "starts_at must be in the future")
	}
	t := &model.Timeslot{BusinessID: uid, StartsAt: req.StartsAt.UTC(), EndsAt: req.EndsAt.UTC()}
	if err := h.Repo.CreateTimeslot(c.Request().Context(), t); err != nil {
		return writeError(c, h.Log, "catalog.CreateTimeslot", err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *CatalogHandler) ownService(ctx context.Context, businessID, serviceID uint64) error {
	s, err := h.Repo.GetService(ctx, serviceID)
	if err != nil {
		return err
	}
	if s.BusinessID != businessID {
		return apperr.Forbidden("service %d belongs to another business", serviceID)
	}
	return nil
}
