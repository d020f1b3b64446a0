package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/fee"
	"github.com/iliyamo/easybook/internal/gateway"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/notify"
	"github.com/iliyamo/easybook/internal/repository"
)

// WebhookOutcome tells the HTTP layer what a delivery did.  All outcomes are
// acknowledged with 200.
type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// VerifyResult reports the ledger state after a verify call.
type VerifyResult struct {
	Reference     string                  `json:"reference"`
	Status        model.TransactionStatus `json:"status"`
	GatewayStatus string                  `json:"gateway_status"`
	AppointmentID string                  `json:"appointment_id"`
	Duplicate     bool                    `json:"duplicate,omitempty"`
}

// ReconcileReport summarizes one sweep over stale pending payments.
type ReconcileReport struct {
	Checked int `json:"checked"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
	Errors  int `json:"errors"`
}

// PayoutReport summarizes one pass over pending payouts.
type PayoutReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// PaymentService opens checkout sessions and settles them, whether the
// processor reports back through the webhook or the customer polls verify.
// Both paths share settle, which locks the ledger row so that concurrent or
// repeated confirmations produce exactly one payout.
type PaymentService struct {
	store       PaymentStore
	gw          PaymentGateway
	fees        fee.Calculator
	notifier    Notifier
	log         *zap.Logger
	tracer      trace.Tracer
	callbackURL string
	now         func() time.Time
}

func NewPaymentService(store PaymentStore, gw PaymentGateway, fees fee.Calculator, notifier Notifier, log *zap.Logger, callbackURL string) *PaymentService {
	return &PaymentService{
		store:       store,
		gw:          gw,
		fees:        fees,
		notifier:    notifier,
		log:         log,
		tracer:      otel.Tracer("github.com/iliyamo/easybook/internal/service"),
		callbackURL: callbackURL,
		now:         time.Now,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Initialize opens a hosted checkout for a PENDING appointment owned by
// userID, records the PENDING transaction with its fee split and moves the
// appointment to PAYMENT_PENDING.  If the processor refuses the session the
// appointment becomes PAYMENT_FAILED and the gateway error is returned.
func (s *PaymentService) Initialize(ctx context.Context, userID uint64, appointmentID string) (txn *model.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.Initialize", trace.WithAttributes(attribute.String("appointment.id", appointmentID)))
	defer func() { endSpan(span, err) }()

	d, err := s.store.AppointmentDetail(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, apperr.Forbidden("appointment %s belongs to another user", appointmentID)
	}
	if d.Status != model.AppointmentPending {
		return nil, apperr.Conflict("appointment in status %s cannot be paid", d.Status)
	}
	account, err := s.store.SettlementAccount(ctx, d.BusinessID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	// Without an active subaccount the platform collects the whole charge
	// and the payout worker transfers the provider share to the recipient.
	subaccount := ""
	switch {
	case account.Ready():
		subaccount = account.SubaccountCode
	case account == nil || account.RecipientCode == "":
		return nil, apperr.Validation("business %d has no active settlement account", d.BusinessID)
	}

	session, err := s.gw.InitializeSession(ctx, gateway.InitializeRequest{
		Email:         d.UserEmail,
		Amount:        d.Price,
		Currency:      d.Currency,
		AppointmentID: d.ID,
		Subaccount:    subaccount,
		CallbackURL:   s.callbackURL,
	})
	if err != nil {
		s.log.Warn("paymentService.Initialize gateway refused session",
			zap.String("appointment_id", d.ID), zap.Error(err))
		s.failInitialization(ctx, d)
		return nil, err
	}

	platformFee, providerAmount := s.fees.Split(d.Price)
	txn = &model.Transaction{
		AppointmentID:    d.ID,
		UserID:           d.UserID,
		BusinessID:       d.BusinessID,
		PricingID:        d.PricingID,
		Reference:        session.Reference,
		AccessCode:       session.AccessCode,
		AuthorizationURL: session.AuthorizationURL,
		SubaccountCode:   subaccount,
		Status:           model.TransactionPending,
		Amount:           d.Price,
		Currency:         d.Currency,
		PlatformFee:      platformFee,
		ProviderAmount:   providerAmount,
	}
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAppointment(ctx, d.ID)
		if err != nil {
			return err
		}
		if a.Status != model.AppointmentPending {
			return apperr.Conflict("appointment in status %s cannot be paid", a.Status)
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		return tx.SetAppointmentStatus(ctx, d.ID, model.AppointmentPaymentPending)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.reference", txn.Reference))
	s.log.Info("paymentService.Initialize session opened",
		zap.String("appointment_id", d.ID), zap.String("reference", txn.Reference),
		zap.String("amount", txn.Amount.StringFixed(2)), zap.String("platform_fee", platformFee.StringFixed(2)))
	return txn, nil
}

// failInitialization marks the appointment PAYMENT_FAILED after the gateway
// refused a session.  Its own errors are logged; the caller reports the
// gateway error.
func (s *PaymentService) failInitialization(ctx context.Context, d *model.AppointmentDetail) {
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		a, err := tx.LockAppointment(ctx, d.ID)
		if err != nil {
			return err
		}
		if !a.Status.CanTransition(model.AppointmentPaymentFailed) {
			return nil
		}
		return tx.SetAppointmentStatus(ctx, d.ID, model.AppointmentPaymentFailed)
	})
	if err != nil {
		s.log.Error("paymentService.Initialize could not mark appointment failed",
			zap.String("appointment_id", d.ID), zap.Error(err))
		return
	}
	ev := notify.EventFromDetail(model.KindPaymentFailed, d)
	ev.Reason = "the payment could not be started"
	dispatch(ctx, s.notifier, s.log, ev)
}

// Verify asks the processor for the state of reference and applies it:
// success settles, failed/abandoned/reversed fails the payment, anything
// else leaves the ledger untouched.
func (s *PaymentService) Verify(ctx context.Context, reference string) (res *VerifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.Verify", trace.WithAttributes(attribute.String("payment.reference", reference)))
	defer func() { endSpan(span, err) }()

	if reference == "" {
		return nil, apperr.Validation("reference is required")
	}
	t, err := s.store.TransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	v, err := s.gw.VerifySession(ctx, reference)
	if err != nil {
		return nil, err
	}
	res = &VerifyResult{Reference: reference, Status: t.Status, GatewayStatus: v.Status, AppointmentID: t.AppointmentID}

	switch v.Status {
	case gateway.StatusSuccess:
		if err := matchesCharge(t, v); err != nil {
			s.log.Error("paymentService.Verify processor charge differs from ledger",
				zap.String("reference", reference),
				zap.String("ledger_amount", t.Amount.StringFixed(2)), zap.String("ledger_currency", t.Currency),
				zap.String("charged_amount", v.Amount.StringFixed(2)), zap.String("charged_currency", v.Currency))
			return nil, err
		}
		out, err := s.settle(ctx, reference, v.Raw, v.PaidAt)
		if err != nil {
			return nil, err
		}
		res.Status, res.Duplicate = out.txn.Status, out.duplicate
	case gateway.StatusFailed, gateway.StatusAbandoned, gateway.StatusReversed:
		updated, err := s.fail(ctx, reference, v.Raw, v.Status)
		if err != nil {
			return nil, err
		}
		res.Status = updated.Status
	}
	span.SetAttributes(attribute.String("payment.status", string(res.Status)))
	return res, nil
}

// matchesCharge rejects a successful verification whose amount or currency
// is not what the ledger row asked for.
func matchesCharge(t *model.Transaction, v *gateway.Verification) error {
	if !v.Amount.Equal(t.Amount) || !strings.EqualFold(v.Currency, t.Currency) {
		return apperr.Conflict("payment %s charged %s %s, expected %s %s",
			t.Reference, v.Currency, v.Amount.StringFixed(2), t.Currency, t.Amount.StringFixed(2))
	}
	return nil
}

// HandleWebhook authenticates and applies one webhook delivery.  A bad
// signature returns apperr.ErrSignature, a body that cannot be parsed or
// lacks a reference apperr.ErrValidation and an unknown reference
// apperr.ErrNotFound.  Any other error should be answered so the processor
// retries.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (out WebhookOutcome, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.HandleWebhook")
	defer func() { endSpan(span, err) }()

	if !s.gw.VerifyWebhookSignature(body, signature) {
		return "", fmt.Errorf("%w: webhook signature mismatch", apperr.ErrSignature)
	}
	ev, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		return "", apperr.Validation("malformed webhook body: %v", err)
	}
	span.SetAttributes(attribute.String("webhook.event", ev.Event), attribute.String("payment.reference", ev.Reference))

	switch ev.Event {
	case gateway.EventChargeSuccess:
		if ev.Reference == "" {
			return "", apperr.Validation("%s event without reference", ev.Event)
		}
		res, err := s.settle(ctx, ev.Reference, ev.Data, ev.PaidAt)
		if err != nil {
			return "", err
		}
		if res.duplicate {
			return WebhookDuplicate, nil
		}
		return WebhookProcessed, nil

	case gateway.EventRefundProcessed:
		if ev.Reference == "" {
			return "", apperr.Validation("%s event without reference", ev.Event)
		}
		changed, err := s.applyRefund(ctx, ev.Reference, "refund processed by the payment provider", ev.Data)
		if errors.Is(err, apperr.ErrConflict) {
			s.log.Warn("paymentService.HandleWebhook refund for unsettled payment ignored",
				zap.String("reference", ev.Reference), zap.Error(err))
			return WebhookIgnored, nil
		}
		if err != nil {
			return "", err
		}
		if !changed {
			return WebhookDuplicate, nil
		}
		return WebhookProcessed, nil
	}

	s.log.Debug("paymentService.HandleWebhook event ignored", zap.String("event", ev.Event))
	return WebhookIgnored, nil
}

type settleResult struct {
	txn       *model.Transaction
	duplicate bool
	confirmed bool
}

// settle marks reference SUCCESS, records the payout and confirms the
// appointment in one database transaction holding the ledger row lock.  A
// transaction that already settled is reported as a duplicate and left
// alone.
func (s *PaymentService) settle(ctx context.Context, reference string, payload json.RawMessage, paidAt *time.Time) (res settleResult, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.settle", trace.WithAttributes(attribute.String("payment.reference", reference)))
	defer func() { endSpan(span, err) }()

	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		res = settleResult{}
		t, err := tx.LockTransaction(ctx, reference)
		if err != nil {
			return err
		}
		res.txn = t
		if t.Status.Settled() {
			res.duplicate = true
			return nil
		}

		when := s.now().UTC()
		if paidAt != nil {
			when = paidAt.UTC()
		}
		t.Status = model.TransactionSuccess
		if len(payload) > 0 {
			t.Metadata = payload
		}
		t.PaidAt = &when
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		p := &model.Payout{
			TransactionID: t.ID,
			BusinessID:    t.BusinessID,
			Amount:        t.ProviderAmount,
			PlatformFee:   t.PlatformFee,
			Status:        model.PayoutPending,
		}
		if t.SubaccountCode != "" {
			// the processor already split the charge into the subaccount
			p.Status = model.PayoutProcessed
			p.TransferReference = t.Reference
		}
		if err := tx.InsertPayout(ctx, p); err != nil {
			return err
		}

		a, err := tx.LockAppointment(ctx, t.AppointmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn("paymentService.settle appointment no longer exists",
				zap.String("reference", reference), zap.String("appointment_id", t.AppointmentID))
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case a.Status == model.AppointmentConfirmed:
		case a.Status.CanTransition(model.AppointmentConfirmed):
			err := tx.SetAppointmentStatus(ctx, a.ID, model.AppointmentConfirmed)
			if errors.Is(err, apperr.ErrConflict) {
				// a late settlement whose slot was rebooked in the meantime
				s.log.Warn("paymentService.settle slot taken, appointment left unconfirmed",
					zap.String("reference", reference), zap.String("appointment_id", a.ID), zap.String("status", string(a.Status)))
				return nil
			}
			if err != nil {
				return err
			}
			res.confirmed = true
		default:
			s.log.Warn("paymentService.settle appointment cannot be confirmed",
				zap.String("reference", reference), zap.String("appointment_id", a.ID), zap.String("status", string(a.Status)))
		}
		return nil
	})
	if err != nil {
		return settleResult{}, err
	}

	if res.duplicate {
		s.log.Info("paymentService.settle duplicate confirmation", zap.String("reference", reference))
		return res, nil
	}
	s.log.Info("paymentService.settle payment settled",
		zap.String("reference", reference), zap.String("appointment_id", res.txn.AppointmentID),
		zap.Bool("confirmed", res.confirmed))
	if res.confirmed {
		s.notifyAppointment(ctx, model.KindAppointmentConfirmed, res.txn, "")
	}
	return res, nil
}

// fail marks a PENDING transaction FAILED and its appointment
// PAYMENT_FAILED.  Transactions past PENDING are returned unchanged.
func (s *PaymentService) fail(ctx context.Context, reference string, payload json.RawMessage, gatewayStatus string) (*model.Transaction, error) {
	var (
		txn     *model.Transaction
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		changed = false
		t, err := tx.LockTransaction(ctx, reference)
		if err != nil {
			return err
		}
		txn = t
		if t.Status != model.TransactionPending {
			return nil
		}
		t.Status = model.TransactionFailed
		if len(payload) > 0 {
			t.Metadata = payload
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		changed = true

		a, err := tx.LockAppointment(ctx, t.AppointmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if a.Status.CanTransition(model.AppointmentPaymentFailed) {
			return tx.SetAppointmentStatus(ctx, a.ID, model.AppointmentPaymentFailed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("paymentService.fail payment failed",
			zap.String("reference", reference), zap.String("gateway_status", gatewayStatus))
		s.notifyAppointment(ctx, model.KindPaymentFailed, txn, "payment "+gatewayStatus)
	}
	return txn, nil
}

// Refund returns a successful payment to the customer.  Only the business
// that received the payment may refund it.
func (s *PaymentService) Refund(ctx context.Context, businessID uint64, reference, reason string) (txn *model.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.Refund", trace.WithAttributes(attribute.String("payment.reference", reference)))
	defer func() { endSpan(span, err) }()

	t, err := s.store.TransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t.BusinessID != businessID {
		return nil, apperr.Forbidden("payment %s belongs to another business", reference)
	}
	if t.Status != model.TransactionSuccess {
		return nil, apperr.Conflict("payment in status %s cannot be refunded", t.Status)
	}
	if reason == "" {
		reason = "refunded by the business"
	}
	if _, err := s.gw.CreateRefund(ctx, reference, t.Amount, reason); err != nil {
		return nil, err
	}
	if _, err := s.applyRefund(ctx, reference, reason, nil); err != nil {
		return nil, err
	}
	return s.store.TransactionByReference(ctx, reference)
}

// applyRefund moves a SUCCESS transaction to REFUNDED, fails its pending
// payout and refunds the appointment.  It reports false when the
// transaction was already refunded.
func (s *PaymentService) applyRefund(ctx context.Context, reference, reason string, payload json.RawMessage) (bool, error) {
	var (
		txn     *model.Transaction
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		changed = false
		t, err := tx.LockTransaction(ctx, reference)
		if err != nil {
			return err
		}
		txn = t
		if t.Status == model.TransactionRefunded {
			return nil
		}
		if t.Status != model.TransactionSuccess {
			return apperr.Conflict("payment in status %s cannot be refunded", t.Status)
		}
		now := s.now().UTC()
		t.Status = model.TransactionRefunded
		t.RefundReason = reason
		t.RefundedAt = &now
		if len(payload) > 0 {
			t.Metadata = payload
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		if _, err := tx.FailPendingPayouts(ctx, t.ID); err != nil {
			return err
		}
		changed = true

		a, err := tx.LockAppointment(ctx, t.AppointmentID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if a.Status.CanTransition(model.AppointmentRefunded) {
			return tx.SetAppointmentStatus(ctx, a.ID, model.AppointmentRefunded)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.log.Info("paymentService.applyRefund payment refunded", zap.String("reference", reference))
		s.notifyAppointment(ctx, model.KindPaymentRefunded, txn, reason)
	}
	return changed, nil
}

// notifyAppointment dispatches kind for the appointment paid by t.  If the
// appointment has been deleted there is nobody to address and nothing is
// sent.
func (s *PaymentService) notifyAppointment(ctx context.Context, kind model.NotificationKind, t *model.Transaction, reason string) {
	d, err := s.store.AppointmentDetail(ctx, t.AppointmentID)
	if err != nil {
		s.log.Warn("notification skipped, appointment unavailable",
			zap.String("kind", string(kind)), zap.String("appointment_id", t.AppointmentID), zap.Error(err))
		return
	}
	ev := notify.EventFromDetail(kind, d)
	ev.Amount = model.FormatMoney(t.Amount)
	ev.Currency = t.Currency
	ev.Reference = t.Reference
	ev.Reason = reason
	dispatch(ctx, s.notifier, s.log, ev)
}

// ReconcileStale re-verifies PENDING transactions older than age.  Errors
// on single references are counted and the sweep carries on.
func (s *PaymentService) ReconcileStale(ctx context.Context, age time.Duration, limit int) (ReconcileReport, error) {
	var rep ReconcileReport
	stale, err := s.store.StalePendingTransactions(ctx, s.now().Add(-age), limit)
	if err != nil {
		return rep, err
	}
	for _, t := range stale {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Checked++
		res, err := s.Verify(ctx, t.Reference)
		if err != nil {
			rep.Errors++
			s.log.Warn("paymentService.ReconcileStale verify failed", zap.String("reference", t.Reference), zap.Error(err))
			continue
		}
		switch res.Status {
		case model.TransactionSuccess:
			rep.Settled++
		case model.TransactionFailed:
			rep.Failed++
		default:
			rep.Pending++
		}
	}
	return rep, nil
}

// PaymentRecord is one payment attempt of an appointment together with its
// payout, if it settled.
type PaymentRecord struct {
	model.Transaction
	Payout *model.Payout `json:"payout,omitempty"`
}

// History lists the payment attempts of an appointment, oldest first.  Only
// the customer and the business of the appointment may read it.
func (s *PaymentService) History(ctx context.Context, viewer uint64, appointmentID string) ([]PaymentRecord, error) {
	d, err := s.store.AppointmentDetail(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if d.UserID != viewer && d.BusinessID != viewer {
		return nil, apperr.Forbidden("appointment %s belongs to another user", appointmentID)
	}
	txns, err := s.store.AppointmentTransactions(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentRecord, 0, len(txns))
	for _, t := range txns {
		rec := PaymentRecord{Transaction: t}
		if t.Status.Settled() {
			p, err := s.store.PayoutByTransaction(ctx, t.ID)
			switch {
			case err == nil:
				rec.Payout = p
			case !errors.Is(err, apperr.ErrNotFound):
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// PayoutReference is the idempotency key sent with a payout transfer.
func PayoutReference(id uint64) string { return fmt.Sprintf("payout-%d", id) }

// ProcessPendingPayouts transfers the provider share of settled payments
// that were not split at charge time.  Payouts whose transfer call fails
// stay PENDING for the next pass.
func (s *PaymentService) ProcessPendingPayouts(ctx context.Context, limit int) (PayoutReport, error) {
	var rep PayoutReport
	pending, err := s.store.PendingPayouts(ctx, limit)
	if err != nil {
		return rep, err
	}
	for _, p := range pending {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if p.RecipientCode == "" {
			rep.Skipped++
			s.log.Warn("paymentService.ProcessPendingPayouts business has no transfer recipient",
				zap.Uint64("payout_id", p.ID), zap.Uint64("business_id", p.BusinessID))
			continue
		}
		ref := PayoutReference(p.ID)
		tr, err := s.gw.InitiateTransfer(ctx, gateway.TransferRequest{
			Amount:    p.Amount,
			Currency:  p.Currency,
			Recipient: p.RecipientCode,
			Reference: ref,
			Reason:    fmt.Sprintf("easybook payout %d", p.ID),
		})
		if err != nil {
			rep.Skipped++
			s.log.Warn("paymentService.ProcessPendingPayouts transfer failed", zap.Uint64("payout_id", p.ID), zap.Error(err))
			continue
		}
		if tr.Reference != "" {
			ref = tr.Reference
		}
		switch tr.Status {
		case "failed", "reversed", "rejected":
			err = s.store.MarkPayoutFailed(ctx, p.ID, ref)
			if err == nil {
				rep.Failed++
			}
		default:
			err = s.store.MarkPayoutProcessed(ctx, p.ID, ref)
			if err == nil {
				rep.Processed++
			}
		}
		if err != nil && !errors.Is(err, apperr.ErrConflict) {
			return rep, err
		}
	}
	return rep, nil
}
