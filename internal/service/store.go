// Package service holds the booking and payment flows.  Every
// check-then-mutate sequence runs inside Store.WithTx; notifications are
// dispatched only after the transaction has committed.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/gateway"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/notify"
	"github.com/iliyamo/easybook/internal/repository"
	"github.com/shopspring/decimal"
)

// AppointmentStore is the persistence the appointment flows need.
// *repository.Store satisfies it.
type AppointmentStore interface {
	WithTx(ctx context.Context, fn func(repository.Tx) error) error
	AppointmentDetail(ctx context.Context, id string) (*model.AppointmentDetail, error)
	UserAppointments(ctx context.Context, userID uint64) ([]model.AppointmentDetail, error)
	BusinessAppointments(ctx context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error)
}

// PaymentStore is the persistence the payment flows need.
type PaymentStore interface {
	WithTx(ctx context.Context, fn func(repository.Tx) error) error
	AppointmentDetail(ctx context.Context, id string) (*model.AppointmentDetail, error)
	SettlementAccount(ctx context.Context, businessID uint64) (*model.SettlementAccount, error)
	TransactionByReference(ctx context.Context, reference string) (*model.Transaction, error)
	AppointmentTransactions(ctx context.Context, appointmentID string) ([]model.Transaction, error)
	PayoutByTransaction(ctx context.Context, transactionID uint64) (*model.Payout, error)
	StalePendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.Transaction, error)
	PendingPayouts(ctx context.Context, limit int) ([]model.PayoutTarget, error)
	MarkPayoutProcessed(ctx context.Context, id uint64, transferReference string) error
	MarkPayoutFailed(ctx context.Context, id uint64, transferReference string) error
}

// SettlementStore reads and writes business settlement accounts.
type SettlementStore interface {
	SettlementAccount(ctx context.Context, businessID uint64) (*model.SettlementAccount, error)
	SaveSettlementAccount(ctx context.Context, a *model.SettlementAccount) error
}

// PaymentGateway is the part of the processor client used for charges,
// refunds and payouts.  *gateway.Client satisfies it.
type PaymentGateway interface {
	InitializeSession(ctx context.Context, req gateway.InitializeRequest) (*gateway.Session, error)
	VerifySession(ctx context.Context, reference string) (*gateway.Verification, error)
	CreateRefund(ctx context.Context, reference string, amount decimal.Decimal, reason string) (*gateway.Refund, error)
	InitiateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.Transfer, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

// SettlementGateway onboards a business with the processor.
type SettlementGateway interface {
	CreateSubaccount(ctx context.Context, req gateway.SubaccountRequest) (*gateway.Subaccount, error)
	FetchSubaccount(ctx context.Context, code string) (*gateway.Subaccount, error)
	CreateTransferRecipient(ctx context.Context, req gateway.RecipientRequest) (string, error)
}

// Notifier delivers events to the notification pipeline.
// *notify.Publisher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, ev notify.Event) error
}

// dispatch hands ev to n.  It runs after commit, so a failure is logged and
// never undoes the state change that caused it.
func dispatch(ctx context.Context, n Notifier, log *zap.Logger, ev notify.Event) {
	if n == nil {
		return
	}
	if err := n.Notify(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("notification dispatch failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("appointment_id", ev.AppointmentID),
			zap.Error(err))
	}
}
