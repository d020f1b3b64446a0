package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/service"
)

// Settlements is implemented by *service.SettlementService.
type Settlements interface {
	Setup(ctx context.Context, req service.SetupRequest) (*model.SettlementAccount, error)
	Get(ctx context.Context, businessID uint64) (*model.SettlementAccount, error)
}

type SettlementHandler struct {
	Svc Settlements
	Log *zap.Logger
}

func NewSettlementHandler(svc Settlements, log *zap.Logger) *SettlementHandler {
	return &SettlementHandler{Svc: svc, Log: log}
}

type subaccountReq struct {
	BusinessName string `json:"business_name"`
	PhoneNumber  string `json:"phone_number"`
	Network      string `json:"mobile_money_network"`
}

// Setup links the calling business to a mobile money wallet.
func (h *SettlementHandler) Setup(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req subaccountReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	acct, err := h.Svc.Setup(c.Request().Context(), service.SetupRequest{
		BusinessID:   uid,
		BusinessName: req.BusinessName,
		PhoneNumber:  req.PhoneNumber,
		Network:      req.Network,
	})
	if err != nil {
		return writeError(c, h.Log, "settlement.Setup", err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *SettlementHandler) Get(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	acct, err := h.Svc.Get(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, h.Log, "settlement.Get", err)
	}
	return c.JSON(http.StatusOK, acct)
}
