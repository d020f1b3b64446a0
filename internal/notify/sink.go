package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	brevo "github.com/getbrevo/brevo-go/lib"
	"go.uber.org/zap"
)

// Sink delivers a rendered message.  It reports success instead of
// returning an error: a failed delivery is recorded, never retried inline.
type Sink interface {
	Send(ctx context.Context, msg Message) bool
}

// LogSink writes messages to the log.  It is the default outside
// production.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Send(_ context.Context, msg Message) bool {
	s.Log.Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text))
	return true
}

// BrevoSink sends transactional email through Brevo's SMTP API.
type BrevoSink struct {
	client      *brevo.APIClient
	senderName  string
	senderEmail string
	log         *zap.Logger
}

func NewBrevoSink(baseURL, apiKey, senderName, senderEmail string, hc *http.Client, log *zap.Logger) *BrevoSink {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	cfg := brevo.NewConfiguration()
	if baseURL != "" {
		cfg.BasePath = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = hc
	cfg.AddDefaultHeader("api-key", apiKey)
	return &BrevoSink{
		client:      brevo.NewAPIClient(cfg),
		senderName:  senderName,
		senderEmail: senderEmail,
		log:         log,
	}
}

func (s *BrevoSink) Send(ctx context.Context, msg Message) bool {
	if err := s.send(ctx, msg); err != nil {
		s.log.Warn("brevo send failed", zap.String("to", msg.To), zap.Error(err))
		return false
	}
	return true
}

func (s *BrevoSink) send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}
	_, resp, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, brevo.SendSmtpEmail{
		Sender:      &brevo.SendSmtpEmailSender{Name: s.senderName, Email: s.senderEmail},
		To:          []brevo.SendSmtpEmailTo{{Email: msg.To, Name: msg.Name}},
		Subject:     msg.Subject,
		HtmlContent: msg.HTML,
		TextContent: msg.Text,
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("brevo status %d: %w", resp.StatusCode, err)
		}
		return err
	}
	return nil
}
