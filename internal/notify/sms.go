package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domain "github.com/tarodan/api/internal/domain"
)

// SMSConfig points at the HTTP SMS provider.
type SMSConfig struct {
	Endpoint string
	APIKey   string
	Sender   string
}

// HTTPSMSSender delivers SMS through a JSON-over-HTTP provider endpoint.
type HTTPSMSSender struct {
	cfg    SMSConfig
	client *http.Client
}

// NewHTTPSMSSender constructs an SMS sender for the configured provider.
func NewHTTPSMSSender(cfg SMSConfig) *HTTPSMSSender {
	return &HTTPSMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSMSSender) Channel() domain.NotificationChannel {
	return domain.ChannelSMS
}

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *HTTPSMSSender) Send(ctx context.Context, msg Message) error {
	if msg.To.PhoneNumber == "" {
		return fmt.Errorf("%w: no phone number for user %s", ErrNoRecipient, msg.To.UserID)
	}

	body := msg.Title
	if msg.Body != "" {
		body = msg.Title + "\n" + msg.Body
	}
	payload, err := json.Marshal(smsRequest{
		From: s.cfg.Sender,
		To:   msg.To.PhoneNumber,
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}
	return nil
}
