// Package jobs publishes marketplace events onto Pub/Sub topics. Consumers
// are external workers (search indexing, analytics, the delivery mirror);
// callers treat publish failures as non-fatal and log them.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/services"
)

// PubSubTradeEventPublisher publishes trade lifecycle events to a Pub/Sub topic.
type PubSubTradeEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubTradeEventPublisher constructs a Pub/Sub backed trade event publisher.
func NewPubSubTradeEventPublisher(topic *pubsub.Topic) (*PubSubTradeEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub trade event publisher: topic is required")
	}
	return &PubSubTradeEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type tradeEventMessage struct {
	Type       string            `json:"type"`
	TradeID    string            `json:"tradeId"`
	ActorID    string            `json:"actorId"`
	Status     string            `json:"status"`
	OccurredAt time.Time         `json:"occurredAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PublishTradeEvent enqueues one event message on the configured topic.
func (p *PubSubTradeEventPublisher) PublishTradeEvent(ctx context.Context, event services.TradeEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub trade event publisher: not initialised")
	}

	data, err := p.marshal(tradeEventMessage{
		Type:       event.Type,
		TradeID:    event.TradeID,
		ActorID:    event.ActorID,
		Status:     string(event.Status),
		OccurredAt: event.OccurredAt,
		Metadata:   event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "tradeId", event.TradeID)
	setAttr(attrs, "actorId", event.ActorID)
	setAttr(attrs, "status", string(event.Status))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish trade event: %w", err)
	}
	return nil
}

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type orderEventMessage struct {
	Type       string            `json:"type"`
	OrderID    string            `json:"orderId"`
	ActorID    string            `json:"actorId"`
	Status     string            `json:"status"`
	OccurredAt time.Time         `json:"occurredAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// PublishOrderEvent enqueues one event message on the configured topic.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := p.marshal(orderEventMessage{
		Type:       event.Type,
		OrderID:    event.OrderID,
		ActorID:    event.ActorID,
		Status:     string(event.Status),
		OccurredAt: event.OccurredAt,
		Metadata:   event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "actorId", event.ActorID)
	setAttr(attrs, "status", string(event.Status))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PubSubDeliveryJobPublisher mirrors notification delivery attempts onto a
// Pub/Sub topic for the analytics pipeline.
type PubSubDeliveryJobPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubDeliveryJobPublisher constructs a Pub/Sub backed delivery publisher.
func NewPubSubDeliveryJobPublisher(topic *pubsub.Topic) (*PubSubDeliveryJobPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub delivery publisher: topic is required")
	}
	return &PubSubDeliveryJobPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

type deliveryJobMessage struct {
	DeliveryID     string    `json:"deliveryId"`
	NotificationID string    `json:"notificationId"`
	UserID         string    `json:"userId"`
	Type           string    `json:"type"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	AttemptedAt    time.Time `json:"attemptedAt"`
}

// PublishDeliveryJob enqueues one delivery record on the configured topic.
func (p *PubSubDeliveryJobPublisher) PublishDeliveryJob(ctx context.Context, delivery domain.NotificationDelivery) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub delivery publisher: not initialised")
	}

	data, err := p.marshal(deliveryJobMessage{
		DeliveryID:     delivery.ID,
		NotificationID: delivery.NotificationID,
		UserID:         delivery.UserID,
		Type:           delivery.Type,
		Channel:        string(delivery.Channel),
		Status:         string(delivery.Status),
		Error:          delivery.Error,
		AttemptedAt:    delivery.AttemptedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal delivery job: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "deliveryId", delivery.ID)
	setAttr(attrs, "userId", delivery.UserID)
	setAttr(attrs, "channel", string(delivery.Channel))
	setAttr(attrs, "status", string(delivery.Status))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish delivery job: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
