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

// DefaultExpoEndpoint is the public Expo push gateway.
const DefaultExpoEndpoint = "https://exp.host/--/api/v2/push/send"

// ExpoSender delivers push notifications through the Expo HTTP API.
type ExpoSender struct {
	endpoint string
	client   *http.Client
}

// NewExpoSender constructs a push sender. An empty endpoint selects the
// public Expo gateway.
func NewExpoSender(endpoint string) *ExpoSender {
	if endpoint == "" {
		endpoint = DefaultExpoEndpoint
	}
	return &ExpoSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *ExpoSender) Channel() domain.NotificationChannel {
	return domain.ChannelPush
}

type expoPushRequest struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (s *ExpoSender) Send(ctx context.Context, msg Message) error {
	if msg.To.PushToken == "" {
		return fmt.Errorf("%w: no push token for user %s", ErrNoRecipient, msg.To.UserID)
	}

	payload, err := json.Marshal(expoPushRequest{
		To:    msg.To.PushToken,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	})
	if err != nil {
		return fmt.Errorf("encode push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}
	return nil
}
