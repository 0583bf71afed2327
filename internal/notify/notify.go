// Package notify contains the outbound channel senders used by notification
// dispatch: SMTP email, Expo push, and an HTTP SMS provider. Senders are
// attempt-once; callers record the outcome and never retry.
package notify

import (
	"context"
	"errors"

	domain "github.com/tarodan/api/internal/domain"
)

// ErrNoRecipient indicates the user profile lacks the address a channel
// needs (email, phone number, push token).
var ErrNoRecipient = errors.New("notify: recipient address missing")

// Recipient carries the resolved addresses for one user.
type Recipient struct {
	UserID      string
	DisplayName string
	Email       string
	PhoneNumber string
	PushToken   string
}

// Message is a rendered notification ready for one delivery attempt.
type Message struct {
	Type  string
	Title string
	Body  string
	Data  map[string]string
	To    Recipient
}

// Sender performs a single delivery attempt on one channel.
type Sender interface {
	Channel() domain.NotificationChannel
	Send(ctx context.Context, msg Message) error
}
