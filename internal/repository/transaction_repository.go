package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/easybook/internal/model"
)

// TransactionRepo is the payment ledger.  Rows are inserted when a checkout
// session is opened and only ever updated afterwards.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, appointment_id, user_id, business_id, pricing_id, reference, access_code,
	authorization_url, subaccount_code, status, amount, currency, platform_fee, provider_amount,
	metadata, paid_at, refund_reason, refunded_at, created_at, updated_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		t                  model.Transaction
		meta               []byte
		paidAt, refundedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.AppointmentID, &t.UserID, &t.BusinessID, &t.PricingID, &t.Reference, &t.AccessCode,
		&t.AuthorizationURL, &t.SubaccountCode, &t.Status, &t.Amount, &t.Currency, &t.PlatformFee, &t.ProviderAmount,
		&meta, &paidAt, &t.RefundReason, &refundedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		t.Metadata = json.RawMessage(meta)
	}
	t.PaidAt = nullTime(paidAt)
	t.RefundedAt = nullTime(refundedAt)
	return &t, nil
}

// jsonArg passes JSON as text; the driver would otherwise send []byte with
// the binary charset, which a JSON column rejects.
func jsonArg(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}

// CreateTx inserts a PENDING ledger row.  A reused reference is a conflict.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (appointment_id, user_id, business_id, pricing_id, reference, access_code,
			authorization_url, subaccount_code, status, amount, currency, platform_fee, provider_amount,
			metadata, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.AppointmentID, t.UserID, t.BusinessID, t.PricingID, t.Reference, t.AccessCode,
		t.AuthorizationURL, t.SubaccountCode, t.Status, t.Amount.StringFixed(2), t.Currency,
		t.PlatformFee.StringFixed(2), t.ProviderAmount.StringFixed(2), jsonArg(t.Metadata), now, now)
	if err != nil {
		return conflictOnDuplicate(err, "payment reference %s already recorded", t.Reference)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID, t.CreatedAt, t.UpdatedAt = uint64(id), now, now
	return nil
}

// GetByReferenceForUpdateTx loads a ledger row and holds its row lock until
// tx ends, serializing concurrent webhook and verify settlement.
func (r *TransactionRepo) GetByReferenceForUpdateTx(ctx context.Context, tx *sql.Tx, reference string) (*model.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference=? FOR UPDATE`, reference))
	if err != nil {
		return nil, notFound(err, "payment reference %s", reference)
	}
	return t, nil
}

// UpdateTx writes the mutable columns of a row locked by
// GetByReferenceForUpdateTx.
func (r *TransactionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`UPDATE transactions
		    SET status=?, metadata=?, paid_at=?, refund_reason=?, refunded_at=?, updated_at=?
		  WHERE id=?`,
		t.Status, jsonArg(t.Metadata), timeArg(t.PaidAt), t.RefundReason, timeArg(t.RefundedAt), now, t.ID)
	if err != nil {
		return err
	}
	t.UpdatedAt = now
	return nil
}

// GetByReference reads a ledger row without locking.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*model.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference=?`, reference))
	if err != nil {
		return nil, notFound(err, "payment reference %s", reference)
	}
	return t, nil
}

// ListByAppointment returns every payment attempt for an appointment.
func (r *TransactionRepo) ListByAppointment(ctx context.Context, appointmentID string) ([]model.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE appointment_id=? ORDER BY id`, appointmentID)
}

// StalePending lists PENDING rows created before olderThan, oldest first.
func (r *TransactionRepo) StalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status=? AND created_at < ? ORDER BY created_at LIMIT ?`,
		model.TransactionPending, olderThan.UTC(), limit)
}

func (r *TransactionRepo) list(ctx context.Context, q string, args ...any) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
