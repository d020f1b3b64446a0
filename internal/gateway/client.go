// Package gateway talks to a Paystack-compatible payment processor: hosted
// checkout sessions, verification, subaccounts for split settlement,
// transfers, refunds and webhook signatures.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/easybook/internal/fee"
)

const maxResponseBytes = 1 << 20

// Config carries the processor endpoint and credentials.
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Client is safe for concurrent use.  It performs no retries; callers own
// the retry policy.
type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	http          *http.Client
}

// New builds a Client.  When httpClient is nil a client with cfg.Timeout is
// created.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	webhookSecret := cfg.WebhookSecret
	if webhookSecret == "" {
		webhookSecret = cfg.SecretKey
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: webhookSecret,
		http:          httpClient,
	}
}

// InitializeSession opens a hosted checkout.  The appointment id travels in
// the metadata so the processor dashboard can be cross-referenced.
func (c *Client) InitializeSession(ctx context.Context, req InitializeRequest) (*Session, error) {
	body := map[string]any{
		"email":        req.Email,
		"amount":       fee.ToMinorUnits(req.Amount),
		"currency":     req.Currency,
		"callback_url": req.CallbackURL,
		"metadata":     map[string]string{"appointment_id": req.AppointmentID},
	}
	if req.Subaccount != "" {
		body["subaccount"] = req.Subaccount
		body["bearer"] = "subaccount"
	}
	var s Session
	if err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, &s); err != nil {
		return nil, err
	}
	if s.Reference == "" || s.AuthorizationURL == "" {
		return nil, &GatewayError{Op: "initialize", Message: "response missing reference or authorization_url"}
	}
	return &s, nil
}

type verifyData struct {
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
}

// VerifySession asks the processor for the authoritative state of a
// transaction.  It has no side effects and may be called any number of times.
func (c *Client) VerifySession(ctx context.Context, reference string) (*Verification, error) {
	if reference == "" {
		return nil, &GatewayError{Op: "verify", Message: "empty reference"}
	}
	var raw json.RawMessage
	if err := c.do(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &raw); err != nil {
		return nil, err
	}
	var d verifyData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &GatewayError{Op: "verify", Message: "decode data", Err: err}
	}
	return &Verification{
		Status:    strings.ToLower(d.Status),
		Reference: d.Reference,
		Amount:    fee.FromMinorUnits(d.Amount),
		Currency:  d.Currency,
		PaidAt:    parseTime(d.PaidAt),
		Metadata:  d.Metadata,
		Raw:       raw,
	}, nil
}

// CreateSubaccount registers a business for split settlement.
func (c *Client) CreateSubaccount(ctx context.Context, req SubaccountRequest) (*Subaccount, error) {
	body := map[string]any{
		"business_name":     req.BusinessName,
		"settlement_bank":   req.SettlementBank,
		"account_number":    req.AccountNumber,
		"percentage_charge": req.PercentageCharge,
		"description":       req.Description,
	}
	var s Subaccount
	if err := c.do(ctx, "create_subaccount", http.MethodPost, "/subaccount", body, &s); err != nil {
		return nil, err
	}
	if s.SubaccountCode == "" {
		return nil, &GatewayError{Op: "create_subaccount", Message: "response missing subaccount_code"}
	}
	return &s, nil
}

// FetchSubaccount returns an existing subaccount by code.
func (c *Client) FetchSubaccount(ctx context.Context, code string) (*Subaccount, error) {
	var s Subaccount
	if err := c.do(ctx, "fetch_subaccount", http.MethodGet, "/subaccount/"+url.PathEscape(code), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateTransferRecipient registers a mobile money wallet and returns its
// recipient code.
func (c *Client) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	body := map[string]any{
		"type":           "mobile_money",
		"name":           req.Name,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       req.Currency,
	}
	var out struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, "create_recipient", http.MethodPost, "/transferrecipient", body, &out); err != nil {
		return "", err
	}
	if out.RecipientCode == "" {
		return "", &GatewayError{Op: "create_recipient", Message: "response missing recipient_code"}
	}
	return out.RecipientCode, nil
}

// InitiateTransfer sends money from the platform balance to a recipient.
// The processor rejects a second transfer with the same reference.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    fee.ToMinorUnits(req.Amount),
		"currency":  req.Currency,
		"recipient": req.Recipient,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	var t Transfer
	if err := c.do(ctx, "transfer", http.MethodPost, "/transfer", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateRefund refunds a settled transaction.  A zero amount refunds it in full.
func (c *Client) CreateRefund(ctx context.Context, reference string, amount decimal.Decimal, reason string) (*Refund, error) {
	body := map[string]any{"transaction": reference}
	if amount.IsPositive() {
		body["amount"] = fee.ToMinorUnits(amount)
	}
	if reason != "" {
		body["merchant_note"] = reason
	}
	var r Refund
	if err := c.do(ctx, "refund", http.MethodPost, "/refund", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// VerifyWebhookSignature checks an inbound webhook against the configured
// webhook secret.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return ValidSignature(c.webhookSecret, body, signature)
}

// ParseWebhookEvent decodes a webhook body.  The signature must already have
// been checked.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var in struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if in.Event == "" {
		return nil, fmt.Errorf("decode webhook: missing event")
	}
	ev := &WebhookEvent{Event: in.Event, Data: in.Data}
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return ev, nil
	}
	var d struct {
		Reference   string `json:"reference"`
		Status      string `json:"status"`
		PaidAt      string `json:"paid_at"`
		Transaction struct {
			Reference string `json:"reference"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(in.Data, &d); err != nil {
		return nil, fmt.Errorf("decode webhook data: %w", err)
	}
	ev.Reference = d.Reference
	if ev.Reference == "" {
		// refund events carry the charge under data.transaction
		ev.Reference = d.Transaction.Reference
	}
	ev.Status = strings.ToLower(d.Status)
	ev.PaidAt = parseTime(d.PaidAt)
	return ev, nil
}

// parseTime accepts the processor's RFC 3339 timestamps and ignores anything
// else; callers fall back to the local clock.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// do sends one JSON request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &GatewayError{Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &GatewayError{Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if !env.Status {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "response missing data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "decode data", Err: err}
	}
	return nil
}
