package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/easybook/internal/fee"
	"github.com/iliyamo/easybook/internal/gateway"
	"github.com/iliyamo/easybook/internal/model"
)

const (
	customerID  uint64 = 1
	otherUserID uint64 = 3
	businessID  uint64 = 2
	serviceID   uint64 = 10
	pricingID   uint64 = 11
	slotID      uint64 = 20
	slot2ID     uint64 = 21
)

type fixture struct {
	store    *memStore
	gw       *fakeGateway
	notifier *fakeNotifier
	appts    *AppointmentService
	payments *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	store.users[customerID] = memUser{email: "ama@example.com", name: "Ama"}
	store.users[otherUserID] = memUser{email: "kofi@example.com", name: "Kofi"}
	store.users[businessID] = memUser{email: "salon@example.com", name: "Salon"}
	store.services[serviceID] = model.Service{ID: serviceID, BusinessID: businessID, Name: "Haircut"}
	store.pricing[pricingID] = model.Pricing{ID: pricingID, ServiceID: serviceID, Price: decimal.RequireFromString("100.00"), Currency: "GHS"}
	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Minute)
	store.slots[slotID] = model.Timeslot{ID: slotID, BusinessID: businessID, StartsAt: start, EndsAt: start.Add(30 * time.Minute)}
	store.slots[slot2ID] = model.Timeslot{ID: slot2ID, BusinessID: businessID, StartsAt: start.Add(time.Hour), EndsAt: start.Add(90 * time.Minute)}
	store.accounts[businessID] = model.SettlementAccount{
		ID: 1, BusinessID: businessID, BusinessName: "Salon", SubaccountCode: "ACCT_biz", RecipientCode: "RCP_biz",
		SettlementBank: "MTN", AccountNumber: "0240000000", Network: "mtn", IsActive: true,
	}

	calc, err := fee.NewCalculator(decimal.RequireFromString("0.05"))
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	gw := newFakeGateway()
	n := &fakeNotifier{}
	log := zap.NewNop()
	return &fixture{
		store:    store,
		gw:       gw,
		notifier: n,
		appts:    NewAppointmentService(store, n, log),
		payments: NewPaymentService(store, gw, calc, n, log, "http://localhost:8080/v1/payments/verify"),
	}
}

func (f *fixture) book(t *testing.T, userID, slot uint64) *model.AppointmentDetail {
	t.Helper()
	d, err := f.appts.Book(context.Background(), BookRequest{UserID: userID, TimeslotID: slot, ServiceID: serviceID, PricingID: pricingID})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	return d
}

// pay books slotID for the customer and opens a checkout session.
func (f *fixture) pay(t *testing.T) (*model.AppointmentDetail, *model.Transaction) {
	t.Helper()
	d := f.book(t, customerID, slotID)
	txn, err := f.payments.Initialize(context.Background(), customerID, d.ID)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return d, txn
}

func chargeSuccess(reference string) []byte {
	return []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"status":"success","paid_at":"2026-03-01T10:00:00Z","amount":10000}}`, reference))
}

func refundProcessed(reference string) []byte {
	return []byte(fmt.Sprintf(`{"event":"refund.processed","data":{"status":"processed","transaction":{"reference":%q}}}`, reference))
}

func (f *fixture) deliver(t *testing.T, body []byte) (WebhookOutcome, error) {
	t.Helper()
	return f.payments.HandleWebhook(context.Background(), body, gateway.Sign(f.gw.secret, body))
}
