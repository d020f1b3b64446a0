package model

import "time"

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutProcessed PayoutStatus = "PROCESSED"
	PayoutFailed    PayoutStatus = "FAILED"
)

// Payout is the provider's share of one successful transaction.  There is at
// most one payout per transaction (unique transaction_id).
type Payout struct {
	ID                uint64       `json:"id"`
	TransactionID     uint64       `json:"transaction_id"`
	BusinessID        uint64       `json:"business_id"`
	Amount            Money        `json:"amount"`
	PlatformFee       Money        `json:"platform_fee"`
	Status            PayoutStatus `json:"status"`
	TransferReference string       `json:"transfer_reference,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// PayoutTarget is a pending payout joined with where the money goes.
type PayoutTarget struct {
	Payout
	Currency      string
	RecipientCode string
}
