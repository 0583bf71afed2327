package domain

import (
	"time"
)

// NotificationChannel enumerates delivery channels for user notifications.
type NotificationChannel string

const (
	// ChannelEmail delivers through SMTP.
	ChannelEmail NotificationChannel = "email"
	// ChannelPush delivers through the Expo push gateway.
	ChannelPush NotificationChannel = "push"
	// ChannelSMS delivers through the configured SMS provider.
	ChannelSMS NotificationChannel = "sms"
	// ChannelInApp persists the notification for in-app display.
	ChannelInApp NotificationChannel = "in_app"
)

// Notification is the in-app representation of a dispatched event.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Body      string
	Data      map[string]string
	Read      bool
	CreatedAt time.Time
	ReadAt    *time.Time
}

// DeliveryStatus records the outcome of a single channel attempt.
type DeliveryStatus string

const (
	// DeliverySent indicates the channel accepted the message.
	DeliverySent DeliveryStatus = "sent"
	// DeliveryFailed indicates the attempt errored; there is no retry.
	DeliveryFailed DeliveryStatus = "failed"
)

// NotificationDelivery is one row of the per-channel delivery log.
type NotificationDelivery struct {
	ID             string
	NotificationID string
	UserID         string
	Type           string
	Channel        NotificationChannel
	Status         DeliveryStatus
	Error          string
	AttemptedAt    time.Time
}
