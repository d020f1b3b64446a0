package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/easybook/internal/apperr"
	"github.com/iliyamo/easybook/internal/model"
)

// PayoutRepo records what the platform owes each business.  The unique
// transaction_id index backs the one-payout-per-transaction rule even if a
// caller skips the ledger row lock.
type PayoutRepo struct {
	db *sql.DB
}

func NewPayoutRepo(db *sql.DB) *PayoutRepo { return &PayoutRepo{db: db} }

// CreateTx inserts the payout for a freshly settled transaction.
func (r *PayoutRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payout) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payouts (transaction_id, business_id, amount, platform_fee, status, transfer_reference, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		p.TransactionID, p.BusinessID, p.Amount.StringFixed(2), p.PlatformFee.StringFixed(2), p.Status, p.TransferReference, now, now)
	if err != nil {
		return conflictOnDuplicate(err, "payout for transaction %d already exists", p.TransactionID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID, p.CreatedAt, p.UpdatedAt = uint64(id), now, now
	return nil
}

// FailPendingTx stops any not-yet-transferred payout of a transaction, used
// when the charge is refunded.
func (r *PayoutRepo) FailPendingTx(ctx context.Context, tx *sql.Tx, transactionID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payouts SET status=?, updated_at=? WHERE transaction_id=? AND status=?`,
		model.PayoutFailed, time.Now().UTC(), transactionID, model.PayoutPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetByTransaction returns the payout of a transaction.
func (r *PayoutRepo) GetByTransaction(ctx context.Context, transactionID uint64) (*model.Payout, error) {
	var p model.Payout
	err := r.db.QueryRowContext(ctx,
		`SELECT id, transaction_id, business_id, amount, platform_fee, status, transfer_reference, created_at, updated_at
		   FROM payouts WHERE transaction_id=?`, transactionID).
		Scan(&p.ID, &p.TransactionID, &p.BusinessID, &p.Amount, &p.PlatformFee, &p.Status, &p.TransferReference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "payout for transaction %d", transactionID)
	}
	return &p, nil
}

// PendingTargets lists PENDING payouts together with the business's
// transfer recipient.  Payouts of businesses without a recipient are skipped.
func (r *PayoutRepo) PendingTargets(ctx context.Context, limit int) ([]model.PayoutTarget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.transaction_id, p.business_id, p.amount, p.platform_fee, p.status, p.transfer_reference,
		        p.created_at, p.updated_at, t.currency, sa.recipient_code
		   FROM payouts p
		   JOIN transactions t ON t.id = p.transaction_id
		   JOIN settlement_accounts sa ON sa.business_id = p.business_id
		  WHERE p.status=? AND sa.recipient_code <> ''
		  ORDER BY p.id LIMIT ?`,
		model.PayoutPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PayoutTarget{}
	for rows.Next() {
		var pt model.PayoutTarget
		p := &pt.Payout
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.BusinessID, &p.Amount, &p.PlatformFee, &p.Status,
			&p.TransferReference, &p.CreatedAt, &p.UpdatedAt, &pt.Currency, &pt.RecipientCode); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// MarkProcessed moves a PENDING payout to PROCESSED.
func (r *PayoutRepo) MarkProcessed(ctx context.Context, id uint64, transferReference string) error {
	return r.finish(ctx, id, model.PayoutProcessed, transferReference)
}

// MarkFailed moves a PENDING payout to FAILED.
func (r *PayoutRepo) MarkFailed(ctx context.Context, id uint64, transferReference string) error {
	return r.finish(ctx, id, model.PayoutFailed, transferReference)
}

func (r *PayoutRepo) finish(ctx context.Context, id uint64, status model.PayoutStatus, ref string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET status=?, transfer_reference=?, updated_at=? WHERE id=? AND status=?`,
		status, ref, time.Now().UTC(), id, model.PayoutPending)
	if err != nil {
		return fmt.Errorf("update payout %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payout %d: %w", id, err)
	}
	if n == 0 {
		return apperr.Conflict("payout %d is no longer pending", id)
	}
	return nil
}
