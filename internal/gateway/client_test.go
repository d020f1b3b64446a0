package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, SecretKey: "sk_test"}, srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestInitializeSession(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
			t.Errorf("authorization = %q", auth)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.example/abc",
				"access_code":       "abc",
				"reference":         "ref-123",
			},
		})
	})

	s, err := c.InitializeSession(context.Background(), InitializeRequest{
		Email:         "ama@example.com",
		Amount:        decimal.RequireFromString("100.50"),
		Currency:      "GHS",
		AppointmentID: "appt-1",
		Subaccount:    "ACCT_x",
		CallbackURL:   "http://localhost/v1/payments/verify",
	})
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if s.Reference != "ref-123" || s.AuthorizationURL != "https://checkout.example/abc" {
		t.Errorf("unexpected session %+v", s)
	}
	if got["amount"] != float64(10050) {
		t.Errorf("amount on the wire = %v, want 10050 minor units", got["amount"])
	}
	if got["bearer"] != "subaccount" || got["subaccount"] != "ACCT_x" {
		t.Errorf("split fields missing: %v", got)
	}
	meta, _ := got["metadata"].(map[string]any)
	if meta["appointment_id"] != "appt-1" {
		t.Errorf("metadata = %v", got["metadata"])
	}
}

func TestInitializeSession_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "Given a 401 from the processor", status: http.StatusUnauthorized, body: `{"status":false,"message":"Invalid key"}`, wantStatus: 401},
		{name: "Given a status=false envelope", status: http.StatusOK, body: `{"status":false,"message":"Currency not supported"}`, wantStatus: 200},
		{name: "Given a malformed body", status: http.StatusOK, body: `<html>`, wantStatus: 200},
		{name: "Given a response without reference", status: http.StatusOK, body: `{"status":true,"data":{"authorization_url":"x"}}`},
		{name: "Given a 500 with no body", status: http.StatusInternalServerError, body: ``, wantStatus: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.InitializeSession(context.Background(), InitializeRequest{Email: "a@b.c", Amount: decimal.NewFromInt(1)})
			var ge *GatewayError
			if !errors.As(err, &ge) {
				t.Fatalf("expected *GatewayError, got %v", err)
			}
			if ge.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", ge.StatusCode, tt.wantStatus)
			}
			if ge.Op != "initialize" {
				t.Errorf("op = %s", ge.Op)
			}
		})
	}
}

func TestVerifySession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transaction/verify/ref-ok":
			writeJSON(w, http.StatusOK, map[string]any{
				"status": true,
				"data": map[string]any{
					"status":    "Success",
					"reference": "ref-ok",
					"amount":    10000,
					"currency":  "GHS",
					"paid_at":   "2024-05-01T10:00:00.000Z",
					"metadata":  map[string]any{"appointment_id": "appt-1"},
				},
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"status": false, "message": "Transaction reference not found"})
		}
	})

	v, err := c.VerifySession(context.Background(), "ref-ok")
	if err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if v.Status != StatusSuccess {
		t.Errorf("status = %s", v.Status)
	}
	if !v.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("amount = %s", v.Amount)
	}
	if v.PaidAt == nil || v.PaidAt.Year() != 2024 {
		t.Errorf("paid_at = %v", v.PaidAt)
	}
	if len(v.Raw) == 0 {
		t.Error("raw payload not kept")
	}

	_, err = c.VerifySession(context.Background(), "ref-missing")
	var ge *GatewayError
	if !errors.As(err, &ge) || ge.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 gateway error, got %v", err)
	}
	if ge.Message != "Transaction reference not found" {
		t.Errorf("message = %q", ge.Message)
	}
}

func TestSubaccountAndRecipient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/subaccount":
			writeJSON(w, http.StatusCreated, map[string]any{"status": true, "data": map[string]any{"id": 7, "subaccount_code": "ACCT_7", "active": true}})
		case r.Method == http.MethodGet && r.URL.Path == "/subaccount/ACCT_7":
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"id": 7, "subaccount_code": "ACCT_7", "active": false}})
		case r.Method == http.MethodPost && r.URL.Path == "/transferrecipient":
			writeJSON(w, http.StatusCreated, map[string]any{"status": true, "data": map[string]any{"recipient_code": "RCP_1"}})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	s, err := c.CreateSubaccount(ctx, SubaccountRequest{BusinessName: "Salon", SettlementBank: "MTN", AccountNumber: "0241234567", PercentageCharge: 5})
	if err != nil || s.SubaccountCode != "ACCT_7" || s.ID != 7 {
		t.Fatalf("CreateSubaccount = %+v, %v", s, err)
	}
	f, err := c.FetchSubaccount(ctx, "ACCT_7")
	if err != nil || f.Active {
		t.Fatalf("FetchSubaccount = %+v, %v", f, err)
	}
	code, err := c.CreateTransferRecipient(ctx, RecipientRequest{Name: "Salon", AccountNumber: "0241234567", BankCode: "MTN", Currency: "GHS"})
	if err != nil || code != "RCP_1" {
		t.Fatalf("CreateTransferRecipient = %q, %v", code, err)
	}
}

func TestTransferAndRefund(t *testing.T) {
	var transferBody, refundBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		switch r.URL.Path {
		case "/transfer":
			_ = json.Unmarshal(b, &transferBody)
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"reference": "payout-9", "status": "pending", "transfer_code": "TRF_1"}})
		case "/refund":
			_ = json.Unmarshal(b, &refundBody)
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": map[string]any{"id": 3, "status": "pending"}})
		}
	})
	ctx := context.Background()

	tr, err := c.InitiateTransfer(ctx, TransferRequest{Amount: decimal.RequireFromString("95.00"), Currency: "GHS", Recipient: "RCP_1", Reference: "payout-9"})
	if err != nil || tr.TransferCode != "TRF_1" {
		t.Fatalf("InitiateTransfer = %+v, %v", tr, err)
	}
	if transferBody["amount"] != float64(9500) || transferBody["source"] != "balance" || transferBody["reference"] != "payout-9" {
		t.Errorf("transfer body = %v", transferBody)
	}

	if _, err := c.CreateRefund(ctx, "ref-1", decimal.Zero, "customer request"); err != nil {
		t.Fatalf("CreateRefund: %v", err)
	}
	if _, ok := refundBody["amount"]; ok {
		t.Errorf("full refund must not send an amount: %v", refundBody)
	}
	if refundBody["transaction"] != "ref-1" {
		t.Errorf("refund body = %v", refundBody)
	}
}

func TestParseWebhookEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		wantRef string
		wantEvt string
	}{
		{name: "Given a charge.success", body: `{"event":"charge.success","data":{"reference":"r1","status":"success","paid_at":"2024-05-01T10:00:00Z"}}`, wantRef: "r1", wantEvt: EventChargeSuccess},
		{name: "Given a refund event", body: `{"event":"refund.processed","data":{"status":"processed","transaction":{"reference":"r2"}}}`, wantRef: "r2", wantEvt: EventRefundProcessed},
		{name: "Given an unparsable paid_at", body: `{"event":"charge.success","data":{"reference":"r3","paid_at":"yesterday"}}`, wantRef: "r3", wantEvt: EventChargeSuccess},
		{name: "Given an event without data", body: `{"event":"transfer.success"}`, wantEvt: "transfer.success"},
		{name: "Given invalid JSON", body: `{"event":`, wantErr: true},
		{name: "Given no event name", body: `{"data":{}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseWebhookEvent([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWebhookEvent: %v", err)
			}
			if ev.Event != tt.wantEvt || ev.Reference != tt.wantRef {
				t.Errorf("got event=%s ref=%s", ev.Event, ev.Reference)
			}
		})
	}
}
