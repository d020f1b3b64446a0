package gateway

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Processor-side transaction statuses returned by verify.
const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusAbandoned  = "abandoned"
	StatusReversed   = "reversed"
	StatusOngoing    = "ongoing"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusQueued     = "queued"
)

// Webhook event names the reconciler acts on.
const (
	EventChargeSuccess   = "charge.success"
	EventRefundProcessed = "refund.processed"
)

// envelope is the response wrapper every endpoint uses.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeRequest describes a hosted checkout session.  Amount is in major
// units and is converted to minor units on the wire.
type InitializeRequest struct {
	Email         string
	Amount        decimal.Decimal
	Currency      string
	AppointmentID string
	Subaccount    string // optional; when set the processor splits the charge
	CallbackURL   string
}

// Session is an initialized checkout.
type Session struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Verification is the processor's view of a transaction.
type Verification struct {
	Status    string
	Reference string
	Amount    decimal.Decimal
	Currency  string
	PaidAt    *time.Time
	Metadata  json.RawMessage
	Raw       json.RawMessage // complete data object, stored on the ledger row
}

type SubaccountRequest struct {
	BusinessName     string
	SettlementBank   string
	AccountNumber    string
	PercentageCharge float64
	Description      string
}

type Subaccount struct {
	ID             int64  `json:"id"`
	SubaccountCode string `json:"subaccount_code"`
	BusinessName   string `json:"business_name"`
	SettlementBank string `json:"settlement_bank"`
	AccountNumber  string `json:"account_number"`
	Active         bool   `json:"active"`
}

// RecipientRequest registers a mobile money wallet as a transfer recipient.
type RecipientRequest struct {
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

type TransferRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Recipient string
	Reference string // idempotency key, e.g. payout-42
	Reason    string
}

type Transfer struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"` // pending | success | failed | otp ...
}

type Refund struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// WebhookEvent is a decoded webhook body.  Data keeps the raw object so it
// can be stored as transaction metadata.
type WebhookEvent struct {
	Event     string
	Reference string
	Status    string
	PaidAt    *time.Time
	Data      json.RawMessage
}
