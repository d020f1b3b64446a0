package model

import "time"

// SettlementAccount links a business to its gateway subaccount (used for
// split payments) and transfer recipient (used for payouts).
type SettlementAccount struct {
	ID             uint64    `json:"id"`
	BusinessID     uint64    `json:"business_id"`
	BusinessName   string    `json:"business_name"`
	SubaccountID   int64     `json:"subaccount_id,omitempty"`
	SubaccountCode string    `json:"subaccount_code,omitempty"`
	RecipientCode  string    `json:"recipient_code,omitempty"`
	SettlementBank string    `json:"settlement_bank"`
	AccountNumber  string    `json:"account_number"`
	Network        string    `json:"network"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ready reports whether the account can receive split payments.
func (a *SettlementAccount) Ready() bool {
	return a != nil && a.IsActive && a.SubaccountCode != ""
}
