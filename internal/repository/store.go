package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/easybook/internal/model"
)

// Tx is the set of writes the booking and payment flows perform inside one
// database transaction.  Implementations must roll everything back when the
// function passed to WithTx returns an error.
type Tx interface {
	BookingContext(ctx context.Context, timeslotID, serviceID, pricingID uint64) (*model.BookingContext, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	LockAppointment(ctx context.Context, id string) (*model.Appointment, error)
	SetAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) error
	DeleteAppointment(ctx context.Context, id string) error

	InsertTransaction(ctx context.Context, t *model.Transaction) error
	LockTransaction(ctx context.Context, reference string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, t *model.Transaction) error

	InsertPayout(ctx context.Context, p *model.Payout) error
	FailPendingPayouts(ctx context.Context, transactionID uint64) (int64, error)
}

// Store groups the repositories behind one *sql.DB and exposes the
// transactional unit of work plus the reads the services need.
type Store struct {
	db           *sql.DB
	Appointments *AppointmentRepo
	Catalog      *CatalogRepo
	Transactions *TransactionRepo
	Payouts      *PayoutRepo
	Settlements  *SettlementRepo
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		Appointments: NewAppointmentRepo(db),
		Catalog:      NewCatalogRepo(db),
		Transactions: NewTransactionRepo(db),
		Payouts:      NewPayoutRepo(db),
		Settlements:  NewSettlementRepo(db),
	}
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) AppointmentDetail(ctx context.Context, id string) (*model.AppointmentDetail, error) {
	return s.Appointments.Detail(ctx, id)
}

func (s *Store) UserAppointments(ctx context.Context, userID uint64) ([]model.AppointmentDetail, error) {
	return s.Appointments.ListByUser(ctx, userID)
}

func (s *Store) BusinessAppointments(ctx context.Context, businessID uint64, status model.AppointmentStatus) ([]model.AppointmentDetail, error) {
	return s.Appointments.ListByBusiness(ctx, businessID, status)
}

func (s *Store) SettlementAccount(ctx context.Context, businessID uint64) (*model.SettlementAccount, error) {
	return s.Settlements.GetByBusiness(ctx, businessID)
}

func (s *Store) SaveSettlementAccount(ctx context.Context, a *model.SettlementAccount) error {
	return s.Settlements.Upsert(ctx, a)
}

func (s *Store) TransactionByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	return s.Transactions.GetByReference(ctx, reference)
}

func (s *Store) AppointmentTransactions(ctx context.Context, appointmentID string) ([]model.Transaction, error) {
	return s.Transactions.ListByAppointment(ctx, appointmentID)
}

func (s *Store) PayoutByTransaction(ctx context.Context, transactionID uint64) (*model.Payout, error) {
	return s.Payouts.GetByTransaction(ctx, transactionID)
}

func (s *Store) StalePendingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.Transaction, error) {
	return s.Transactions.StalePending(ctx, olderThan, limit)
}

func (s *Store) PendingPayouts(ctx context.Context, limit int) ([]model.PayoutTarget, error) {
	return s.Payouts.PendingTargets(ctx, limit)
}

func (s *Store) MarkPayoutProcessed(ctx context.Context, id uint64, transferReference string) error {
	return s.Payouts.MarkProcessed(ctx, id, transferReference)
}

func (s *Store) MarkPayoutFailed(ctx context.Context, id uint64, transferReference string) error {
	return s.Payouts.MarkFailed(ctx, id, transferReference)
}

func (s *Store) DueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.AppointmentDetail, error) {
	return s.Appointments.DueReminders(ctx, from, to, limit)
}

func (s *Store) ClaimReminder(ctx context.Context, appointmentID string) (bool, error) {
	return s.Appointments.ClaimReminder(ctx, appointmentID)
}

// sqlTx adapts the repositories' *Tx methods to the Tx interface.
type sqlTx struct {
	tx *sql.Tx
	s  *Store
}

func (t *sqlTx) BookingContext(ctx context.Context, timeslotID, serviceID, pricingID uint64) (*model.BookingContext, error) {
	return t.s.Catalog.BookingContextTx(ctx, t.tx, timeslotID, serviceID, pricingID)
}

func (t *sqlTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	return t.s.Appointments.CreateTx(ctx, t.tx, a)
}

func (t *sqlTx) LockAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	return t.s.Appointments.GetForUpdateTx(ctx, t.tx, id)
}

func (t *sqlTx) SetAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) error {
	return t.s.Appointments.SetStatusTx(ctx, t.tx, id, status)
}

func (t *sqlTx) DeleteAppointment(ctx context.Context, id string) error {
	return t.s.Appointments.DeleteTx(ctx, t.tx, id)
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	return t.s.Transactions.CreateTx(ctx, t.tx, tr)
}

func (t *sqlTx) LockTransaction(ctx context.Context, reference string) (*model.Transaction, error) {
	return t.s.Transactions.GetByReferenceForUpdateTx(ctx, t.tx, reference)
}

func (t *sqlTx) UpdateTransaction(ctx context.Context, tr *model.Transaction) error {
	return t.s.Transactions.UpdateTx(ctx, t.tx, tr)
}

func (t *sqlTx) InsertPayout(ctx context.Context, p *model.Payout) error {
	return t.s.Payouts.CreateTx(ctx, t.tx, p)
}

func (t *sqlTx) FailPendingPayouts(ctx context.Context, transactionID uint64) (int64, error) {
	return t.s.Payouts.FailPendingTx(ctx, t.tx, transactionID)
}
