package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/easybook/internal/model"
)

// SettlementRepo stores one settlement account per business.
type SettlementRepo struct {
	db *sql.DB
}

func NewSettlementRepo(db *sql.DB) *SettlementRepo { return &SettlementRepo{db: db} }

// GetByBusiness returns ErrNotFound when the business has not onboarded.
func (r *SettlementRepo) GetByBusiness(ctx context.Context, businessID uint64) (*model.SettlementAccount, error) {
	var a model.SettlementAccount
	err := r.db.QueryRowContext(ctx,
		`SELECT id, business_id, business_name, subaccount_id, subaccount_code, recipient_code, settlement_bank,
		        account_number, network, is_active, created_at, updated_at
		   FROM settlement_accounts WHERE business_id=?`, businessID).
		Scan(&a.ID, &a.BusinessID, &a.BusinessName, &a.SubaccountID, &a.SubaccountCode, &a.RecipientCode, &a.SettlementBank,
			&a.AccountNumber, &a.Network, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "settlement account for business %d", businessID)
	}
	return &a, nil
}

// Upsert creates or replaces the business's settlement account.
func (r *SettlementRepo) Upsert(ctx context.Context, a *model.SettlementAccount) error {
	now := time.Now().UTC().Truncate(time.Second)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settlement_accounts (business_id, business_name, subaccount_id, subaccount_code, recipient_code,
		        settlement_bank, account_number, network, is_active, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE business_name=VALUES(business_name), subaccount_id=VALUES(subaccount_id),
		        subaccount_code=VALUES(subaccount_code), recipient_code=VALUES(recipient_code),
		        settlement_bank=VALUES(settlement_bank), account_number=VALUES(account_number),
		        network=VALUES(network), is_active=VALUES(is_active), updated_at=VALUES(updated_at)`,
		a.BusinessID, a.BusinessName, a.SubaccountID, a.SubaccountCode, a.RecipientCode,
		a.SettlementBank, a.AccountNumber, a.Network, a.IsActive, now, now)
	if err != nil {
		return err
	}
	stored, err := r.GetByBusiness(ctx, a.BusinessID)
	if err != nil {
		return err
	}
	*a = *stored
	return nil
}
