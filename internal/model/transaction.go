package model

import (
	"encoding/json"
	"time"
)

// TransactionStatus is the ledger state of a payment attempt.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "PENDING"
	TransactionSuccess  TransactionStatus = "SUCCESS"
	TransactionFailed   TransactionStatus = "FAILED"
	TransactionRefunded TransactionStatus = "REFUNDED"
)

// Settled reports whether the processor has captured the money at some
// point.  A settled transaction never settles again.
func (s TransactionStatus) Settled() bool {
	return s == TransactionSuccess || s == TransactionRefunded
}

// Transaction mirrors the transactions table.  Rows are never deleted;
// AppointmentID is kept even after the appointment itself is removed.
// PlatformFee + ProviderAmount == Amount always holds.
type Transaction struct {
	ID               uint64            `json:"id"`
	AppointmentID    string            `json:"appointment_id"`
	UserID           uint64            `json:"user_id"`
	BusinessID       uint64            `json:"business_id"`
	PricingID        uint64            `json:"pricing_id"`
	Reference        string            `json:"reference"`
	AccessCode       string            `json:"access_code,omitempty"`
	AuthorizationURL string            `json:"authorization_url,omitempty"`
	SubaccountCode   string            `json:"subaccount_code,omitempty"`
	Status           TransactionStatus `json:"status"`
	Amount           Money             `json:"amount"`
	Currency         string            `json:"currency"`
	PlatformFee      Money             `json:"platform_fee"`
	ProviderAmount   Money             `json:"provider_amount"`
	Metadata         json.RawMessage   `json:"metadata,omitempty"` // last gateway payload
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	RefundReason     string            `json:"refund_reason,omitempty"`
	RefundedAt       *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
