package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/gateway"
	"github.com/iliyamo/easybook/internal/model"
	"github.com/iliyamo/easybook/internal/notify"
	"github.com/iliyamo/easybook/internal/repository"
)

type memUser struct {
	email, name string
}

// memStore is an in-memory store.  WithTx holds the mutex for the whole
// unit of work and restores a snapshot when fn fails, which is at least as
// strict as the row locks and unique indexes of the MySQL store.
type memStore struct {
	mu sync.Mutex

	users    map[uint64]memUser
	services map[uint64]model.Service
	pricing  map[uint64]model.Pricing
	slots    map[uint64]model.Timeslot
	appts    map[string]model.Appointment
	txns     map[string]model.Transaction // by reference
	payouts  map[uint64]model.Payout
	accounts map[uint64]model.SettlementAccount
	nextID   uint64

	// insertPayoutErr, when set, fails InsertPayout.
	insertPayoutErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[uint64]memUser{},
		services: map[uint64]model.Service{},
		pricing:  map[uint64]model.Pricing{},
		slots:    map[uint64]model.Timeslot{},
		appts:    map[string]model.Appointment{},
		txns:     map[string]model.Transaction{},
		payouts:  map[uint64]model.Payout{},
		accounts: map[uint64]model.SettlementAccount{},
		nextID:   100,
	}
}

func (m *memStore) id() uint64 { m.nextID++; return m.nextID }

type memSnapshot struct {
	appts    map[string]model.Appointment
	txns     map[string]model.Transaction
	payouts  map[uint64]model.Payout
	accounts map[uint64]model.SettlementAccount
	nextID   uint64
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) WithTx(_ context.Context, fn func(repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memSnapshot{copyMap(m.appts), copyMap(m.txns), copyMap(m.payouts), copyMap(m.accounts), m.nextID}
	if err := fn(&memTx{m: m}); err != nil {
		m.appts, m.txns, m.payouts, m.accounts, m.nextID = snap.appts, snap.txns, snap.payouts, snap.accounts, snap.nextID
		return err
	}
	return nil
}

func (m *memStore) detail(a model.Appointment) model.AppointmentDetail {
	u := m.users[a.UserID]
	svc := m.services[a.ServiceID]
	p := m.pricing[a.PricingID]
	slot := m.slots[a.TimeslotID]
	return model.AppointmentDetail{
		Appointment:  a,
		UserEmail:    u.email,
		UserName:     u.name,
		BusinessID:   svc.BusinessID,
		ServiceName:  svc.Name,
		Price:        p.Price,
		Currency:     p.Currency,
		SlotStartsAt: slot.StartsAt,
		SlotEndsAt:   slot.EndsAt,
	}
}

func (m *memStore) AppointmentDetail(_ context.Context, id string) (*model.AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s", id)
	}
	d := m.detail(a)
	return &d, nil
}

func (m *memStore) list(keep func(model.AppointmentDetail) bool) []model.AppointmentDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AppointmentDetail{}
	for _, a := range m.appts {
		if d := m.detail(a); keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotStartsAt.Before(out[j].SlotStartsAt) })
	return out
}

func (m *memStore) UserAppointments(_ context.Context, userID uint64) ([]model.AppointmentDetail, error) {
	return m.list(func(d model.AppointmentDetail) bool { return d.UserID == userID }), nil
}

func (m *memStore) BusinessAppointments(_ context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error) {
	return m.list(func(d model.AppointmentDetail) bool {
		return d.BusinessID == businessID && (status == "" || d.Status == status)
	}), nil
}

func (m *memStore) SettlementAccount(_ context.Context, businessID uint64) (*model.SettlementAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[businessID]
	if !ok {
		return nil, apperr.NotFound("settlement account for business %d", businessID)
	}
	return &a, nil
}

func (m *memStore) SaveSettlementAccount(_ context.Context, a *model.SettlementAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.accounts[a.BusinessID]; ok {
		a.ID = old.ID
	} else {
		a.ID = m.id()
	}
	m.accounts[a.BusinessID] = *a
	return nil
}

func (m *memStore) TransactionByReference(_ context.Context, reference string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[reference]
	if !ok {
		return nil, apperr.NotFound("payment reference %s", reference)
	}
	return &t, nil
}

func (m *memStore) AppointmentTransactions(_ context.Context, appointmentID string) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Transaction{}
	for _, t := range m.txns {
		if t.AppointmentID == appointmentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) PayoutByTransaction(_ context.Context, transactionID uint64) (*model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payouts {
		if p.TransactionID == transactionID {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("payout for transaction %d", transactionID)
}

func (m *memStore) StalePendingTransactions(_ context.Context, olderThan time.Time, limit int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Transaction{}
	for _, t := range m.txns {
		if t.Status == model.TransactionPending && t.CreatedAt.Before(olderThan) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) PendingPayouts(_ context.Context, limit int) ([]model.PayoutTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PayoutTarget{}
	for _, p := range m.payouts {
		if p.Status != model.PayoutPending {
			continue
		}
		target := model.PayoutTarget{Payout: p, RecipientCode: m.accounts[p.BusinessID].RecipientCode}
		for _, t := range m.txns {
			if t.ID == p.TransactionID {
				target.Currency = t.Currency
			}
		}
		out = append(out, target)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) finishPayout(id uint64, status model.PayoutStatus, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok || p.Status != model.PayoutPending {
		return apperr.Conflict("payout %d is no longer pending", id)
	}
	p.Status, p.TransferReference = status, ref
	m.payouts[id] = p
	return nil
}

func (m *memStore) MarkPayoutProcessed(_ context.Context, id uint64, ref string) error {
	return m.finishPayout(id, model.PayoutProcessed, ref)
}

func (m *memStore) MarkPayoutFailed(_ context.Context, id uint64, ref string) error {
	return m.finishPayout(id, model.PayoutFailed, ref)
}

// test helpers, called outside WithTx

func (m *memStore) appt(id string) model.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appts[id]
}

func (m *memStore) txn(ref string) model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txns[ref]
}

func (m *memStore) payoutsFor(txID uint64) []model.Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Payout
	for _, p := range m.payouts {
		if p.TransactionID == txID {
			out = append(out, p)
		}
	}
	return out
}

func (m *memStore) setCreatedAt(ref string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.txns[ref]
	t.CreatedAt = at
	m.txns[ref] = t
}

// memTx runs with memStore.mu held.
type memTx struct {
	m *memStore
}

func (t *memTx) BookingContext(_ context.Context, timeslotID, serviceID, pricingID uint64) (*model.BookingContext, error) {
	slot, ok := t.m.slots[timeslotID]
	if !ok {
		return nil, apperr.NotFound("timeslot %d", timeslotID)
	}
	svc, ok := t.m.services[serviceID]
	if !ok {
		return nil, apperr.NotFound("service %d", serviceID)
	}
	p, ok := t.m.pricing[pricingID]
	if !ok {
		return nil, apperr.NotFound("pricing %d", pricingID)
	}
	return &model.BookingContext{Timeslot: slot, Service: svc, Pricing: p}, nil
}

func (t *memTx) slotHeld(timeslotID uint64, except string) bool {
	for id, a := range t.m.appts {
		if id != except && a.TimeslotID == timeslotID && a.Status.Active() {
			return true
		}
	}
	return false
}

func (t *memTx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if a.Status.Active() && t.slotHeld(a.TimeslotID, a.ID) {
		return apperr.Conflict("timeslot %d is already booked", a.TimeslotID)
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	t.m.appts[a.ID] = *a
	return nil
}

func (t *memTx) LockAppointment(_ context.Context, id string) (*model.Appointment, error) {
	a, ok := t.m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s", id)
	}
	return &a, nil
}

func (t *memTx) SetAppointmentStatus(_ context.Context, id string, status model.AppointmentStatus) error {
	a, ok := t.m.appts[id]
	if !ok {
		return apperr.NotFound("appointment %s", id)
	}
	if status.Active() && t.slotHeld(a.TimeslotID, id) {
		return apperr.Conflict("timeslot of appointment %s is held by another booking", id)
	}
	a.Status = status
	t.m.appts[id] = a
	return nil
}

func (t *memTx) DeleteAppointment(_ context.Context, id string) error {
	if _, ok := t.m.appts[id]; !ok {
		return apperr.NotFound("appointment %s", id)
	}
	delete(t.m.appts, id)
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *model.Transaction) error {
	if _, ok := t.m.txns[tr.Reference]; ok {
		return apperr.Conflict("payment reference %s already recorded", tr.Reference)
	}
	tr.ID = t.m.id()
	tr.CreatedAt = time.Now().UTC()
	t.m.txns[tr.Reference] = *tr
	return nil
}

func (t *memTx) LockTransaction(_ context.Context, reference string) (*model.Transaction, error) {
	tr, ok := t.m.txns[reference]
	if !ok {
		return nil, apperr.NotFound("payment reference %s", reference)
	}
	return &tr, nil
}

func (t *memTx) UpdateTransaction(_ context.Context, tr *model.Transaction) error {
	t.m.txns[tr.Reference] = *tr
	return nil
}

func (t *memTx) InsertPayout(_ context.Context, p *model.Payout) error {
	if t.m.insertPayoutErr != nil {
		return t.m.insertPayoutErr
	}
	for _, existing := range t.m.payouts {
		if existing.TransactionID == p.TransactionID {
			return apperr.Conflict("payout for transaction %d already exists", p.TransactionID)
		}
	}
	p.ID = t.m.id()
	t.m.payouts[p.ID] = *p
	return nil
}

func (t *memTx) FailPendingPayouts(_ context.Context, transactionID uint64) (int64, error) {
	var n int64
	for id, p := range t.m.payouts {
		if p.TransactionID == transactionID && p.Status == model.PayoutPending {
			p.Status = model.PayoutFailed
			t.m.payouts[id] = p
			n++
		}
	}
	return n, nil
}

// fakeGateway stands in for the processor.
type fakeGateway struct {
	mu sync.Mutex

	secret   string
	initErr  error
	sessions int

	verify    map[string]*gateway.Verification
	verifyErr error

	refunds   []string
	refundErr error

	transfers   []gateway.TransferRequest
	transferFn  func(gateway.TransferRequest) (*gateway.Transfer, error)
	initialized []gateway.InitializeRequest
	charges     map[string]gateway.InitializeRequest

	subaccounts       map[string]*gateway.Subaccount
	createdSubs       []gateway.SubaccountRequest
	recipientsCreated int
	fetchErr          error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		secret:      "whsec",
		verify:      map[string]*gateway.Verification{},
		charges:     map[string]gateway.InitializeRequest{},
		subaccounts: map[string]*gateway.Subaccount{},
	}
}

func (g *fakeGateway) InitializeSession(_ context.Context, req gateway.InitializeRequest) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.sessions++
	g.initialized = append(g.initialized, req)
	ref := fmt.Sprintf("ref-%d", g.sessions)
	g.charges[ref] = req
	return &gateway.Session{AuthorizationURL: "https://checkout.test/" + ref, AccessCode: "ac-" + ref, Reference: ref}, nil
}

func (g *fakeGateway) VerifySession(_ context.Context, reference string) (*gateway.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	v, ok := g.verify[reference]
	if !ok {
		return nil, &gateway.GatewayError{Op: "verify", StatusCode: 404, Message: "Transaction reference not found"}
	}
	return v, nil
}

// setVerify reports status for reference, charging what the session asked
// for.
func (g *fakeGateway) setVerify(reference, status string) {
	g.mu.Lock()
	req := g.charges[reference]
	g.mu.Unlock()
	g.setVerifyCharge(reference, status, req.Amount, req.Currency)
}

func (g *fakeGateway) setVerifyCharge(reference, status string, amount decimal.Decimal, currency string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verify[reference] = &gateway.Verification{
		Status:    status,
		Reference: reference,
		Amount:    amount,
		Currency:  currency,
		Raw:       []byte(fmt.Sprintf(`{"reference":%q,"status":%q}`, reference, status)),
	}
}

func (g *fakeGateway) CreateRefund(_ context.Context, reference string, _ decimal.Decimal, _ string) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, reference)
	return &gateway.Refund{ID: int64(len(g.refunds)), Status: "pending"}, nil
}

func (g *fakeGateway) InitiateTransfer(_ context.Context, req gateway.TransferRequest) (*gateway.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, req)
	if g.transferFn != nil {
		return g.transferFn(req)
	}
	return &gateway.Transfer{Reference: req.Reference, TransferCode: "TRF_1", Status: "success"}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return gateway.ValidSignature(g.secret, body, signature)
}

func (g *fakeGateway) CreateSubaccount(_ context.Context, req gateway.SubaccountRequest) (*gateway.Subaccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createdSubs = append(g.createdSubs, req)
	code := fmt.Sprintf("ACCT_%d", len(g.createdSubs))
	sub := &gateway.Subaccount{
		ID:             int64(len(g.createdSubs)),
		SubaccountCode: code,
		BusinessName:   req.BusinessName,
		SettlementBank: req.SettlementBank,
		AccountNumber:  req.AccountNumber,
		Active:         true,
	}
	g.subaccounts[code] = sub
	return sub, nil
}

func (g *fakeGateway) FetchSubaccount(_ context.Context, code string) (*gateway.Subaccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	sub, ok := g.subaccounts[code]
	if !ok {
		return nil, &gateway.GatewayError{Op: "fetch subaccount", StatusCode: 404}
	}
	return sub, nil
}

func (g *fakeGateway) CreateTransferRecipient(_ context.Context, req gateway.RecipientRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recipientsCreated++
	return fmt.Sprintf("RCP_%d", g.recipientsCreated), nil
}

// fakeNotifier records dispatched events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *fakeNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (n *fakeNotifier) count(kind model.NotificationKind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}
