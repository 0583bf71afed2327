package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tarodan/api/internal/domain"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
	"github.com/tarodan/api/internal/repositories"
)

const deliveriesCollection = "notificationDeliveries"

// DeliveryRepository appends per-channel delivery log rows. The log is
// append-only; rows are never updated or removed.
type DeliveryRepository struct {
	base *pfirestore.BaseRepository[deliveryDocument]
}

// NewDeliveryRepository constructs a Firestore-backed delivery log repository.
func NewDeliveryRepository(provider *pfirestore.Provider) (*DeliveryRepository, error) {
	if provider == nil {
		return nil, errors.New("delivery repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[deliveryDocument](provider, deliveriesCollection, nil, nil)
	return &DeliveryRepository{base: base}, nil
}

// Append stores one delivery attempt row.
func (r *DeliveryRepository) Append(ctx context.Context, delivery domain.NotificationDelivery) error {
	if r == nil || r.base == nil {
		return errors.New("delivery repository not initialised")
	}
	deliveryID := strings.TrimSpace(delivery.ID)
	if deliveryID == "" {
		return errors.New("delivery repository: delivery id is required")
	}
	if _, err := r.base.Create(ctx, deliveryID, encodeDeliveryDocument(delivery)); err != nil {
		return err
	}
	return nil
}

// List returns delivery rows matching the filter, newest attempts first.
func (r *DeliveryRepository) List(ctx context.Context, filter repositories.DeliveryListFilter) (domain.CursorPage[domain.NotificationDelivery], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.NotificationDelivery]{}, errors.New("delivery repository not initialised")
	}

	limit, fetchLimit := pageWindow(filter.Pagination)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.NotificationDelivery]{}, fmt.Errorf("delivery repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	userID := strings.TrimSpace(filter.UserID)
	channel := strings.ToLower(strings.TrimSpace(filter.Channel))
	statusFilter := strings.ToLower(strings.TrimSpace(filter.Status))

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if userID != "" {
			q = q.Where("userId", "==", userID)
		}
		if channel != "" {
			q = q.Where("channel", "==", channel)
		}
		if statusFilter != "" {
			q = q.Where("status", "==", statusFilter)
		}
		if filter.DateRange.From != nil {
			q = q.Where("attemptedAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("attemptedAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("attemptedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.NotificationDelivery]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeCursor(chooseTime(last.Data.AttemptedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.NotificationDelivery, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeDeliveryDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return domain.CursorPage[domain.NotificationDelivery]{Items: items, NextPageToken: nextToken}, nil
}

type deliveryDocument struct {
	NotificationID string    `firestore:"notificationId,omitempty"`
	UserID         string    `firestore:"userId"`
	Type           string    `firestore:"type"`
	Channel        string    `firestore:"channel"`
	Status         string    `firestore:"status"`
	Error          string    `firestore:"error,omitempty"`
	AttemptedAt    time.Time `firestore:"attemptedAt"`
}

func encodeDeliveryDocument(delivery domain.NotificationDelivery) deliveryDocument {
	return deliveryDocument{
		NotificationID: strings.TrimSpace(delivery.NotificationID),
		UserID:         strings.TrimSpace(delivery.UserID),
		Type:           strings.TrimSpace(delivery.Type),
		Channel:        string(delivery.Channel),
		Status:         string(delivery.Status),
		Error:          delivery.Error,
		AttemptedAt:    delivery.AttemptedAt.UTC(),
	}
}

func decodeDeliveryDocument(id string, doc deliveryDocument, createdAt time.Time) domain.NotificationDelivery {
	return domain.NotificationDelivery{
		ID:             strings.TrimSpace(id),
		NotificationID: strings.TrimSpace(doc.NotificationID),
		UserID:         strings.TrimSpace(doc.UserID),
		Type:           strings.TrimSpace(doc.Type),
		Channel:        domain.NotificationChannel(strings.TrimSpace(doc.Channel)),
		Status:         domain.DeliveryStatus(strings.TrimSpace(doc.Status)),
		Error:          doc.Error,
		AttemptedAt:    chooseTime(doc.AttemptedAt, createdAt),
	}
}
