package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/gateway"
	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/service"
)

// maxWebhookBody bounds what the webhook endpoint reads.
const maxWebhookBody = 1 << 20

// Payments is implemented by *service.PaymentService.
type Payments interface {
	Initialize(ctx context.Context, userID uint64, appointmentID string) (*model.Transaction, error)
	Verify(ctx context.Context, reference string) (*service.VerifyResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (service.WebhookOutcome, error)
	Refund(ctx context.Context, businessID uint64, reference, reason string) (*model.Transaction, error)
	History(ctx context.Context, viewer uint64, appointmentID string) ([]service.PaymentRecord, error)
}

type PaymentHandler struct {
	Svc Payments
	Log *zap.Logger
}

func NewPaymentHandler(svc Payments, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{Svc: svc, Log: log}
}

type checkoutResp struct {
	Reference        string                  `json:"reference"`
	AuthorizationURL string                  `json:"authorization_url"`
	AccessCode       string                  `json:"access_code"`
	Status           model.TransactionStatus `json:"status"`
	Amount           model.Money             `json:"amount"`
	Currency         string                  `json:"currency"`
	PlatformFee      model.Money             `json:"platform_fee"`
	ProviderAmount   model.Money             `json:"provider_amount"`
}

type transactionResp struct {
	Reference     string                  `json:"reference"`
	AppointmentID string                  `json:"appointment_id"`
	Status        model.TransactionStatus `json:"status"`
	Amount        model.Money             `json:"amount"`
	Currency      string                  `json:"currency"`
	PaidAt        *time.Time              `json:"paid_at,omitempty"`
	RefundReason  string                  `json:"refund_reason,omitempty"`
	RefundedAt    *time.Time              `json:"refunded_at,omitempty"`
}

// Initialize opens a hosted checkout for one of the caller's appointments.
func (h *PaymentHandler) Initialize(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	t, err := h.Svc.Initialize(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "payment.Initialize", err)
	}
	return c.JSON(http.StatusCreated, checkoutResp{
		Reference:        t.Reference,
		AuthorizationURL: t.AuthorizationURL,
		AccessCode:       t.AccessCode,
		Status:           t.Status,
		Amount:           t.Amount,
		Currency:         t.Currency,
		PlatformFee:      t.PlatformFee,
		ProviderAmount:   t.ProviderAmount,
	})
}

// Verify asks the processor for the outcome of ?reference= and applies it.
// It is also the landing point of the checkout callback, so it is public.
func (h *PaymentHandler) Verify(c echo.Context) error {
	ref := strings.TrimSpace(c.QueryParam("reference"))
	if ref == "" {
		ref = strings.TrimSpace(c.QueryParam("trxref"))
	}
	if ref == "" {
		return badRequest(c, "reference required")
	}
	res, err := h.Svc.Verify(c.Request().Context(), ref)
	if err != nil {
		return writeError(c, h.Log, "payment.Verify", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Webhook receives processor events.  400 for a bad signature or a
// malformed payload, 404 for an unknown reference, 500 for anything the
// processor should redeliver.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	out, err := h.Svc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(gateway.SignatureHeader))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"status": out})
	case errors.Is(err, apperr.ErrSignature):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	case errors.Is(err, apperr.ErrValidation):
		h.Log.Warn("payment.Webhook malformed payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed payload"})
	case errors.Is(err, apperr.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown reference"})
	}
	h.Log.Error("payment.Webhook failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "processing failed"})
}

type refundReq struct {
	Reason string `json:"reason"`
}

// Refund returns a settled payment to the customer.  Only the business that
// received it may refund.
func (h *PaymentHandler) Refund(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req refundReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	t, err := h.Svc.Refund(c.Request().Context(), uid, c.Param("reference"), strings.TrimSpace(req.Reason))
	if err != nil {
		return writeError(c, h.Log, "payment.Refund", err)
	}
	return c.JSON(http.StatusOK, transactionResp{
		Reference:     t.Reference,
		AppointmentID: t.AppointmentID,
		Status:        t.Status,
		Amount:        t.Amount,
		Currency:      t.Currency,
		PaidAt:        t.PaidAt,
		RefundReason:  t.RefundReason,
		RefundedAt:    t.RefundedAt,
	})
}

// History lists the payment attempts of an appointment.
func (h *PaymentHandler) History(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	recs, err := h.Svc.History(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, "payment.History", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": recs})
}
