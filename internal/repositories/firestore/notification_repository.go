package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/tarodan/api/internal/domain"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
	"github.com/tarodan/api/internal/repositories"
)

const notificationsCollection = "notifications"

// NotificationRepository stores in-app notification rows per user. Lookups
// are scoped to the owning user so one user cannot read or mark another
// user's rows.
type NotificationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{provider: provider, base: base}, nil
}

// Insert stores a new notification document.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	notificationID := strings.TrimSpace(notification.ID)
	if notificationID == "" {
		return errors.New("notification repository: notification id is required")
	}
	if _, err := r.base.Create(ctx, notificationID, encodeNotificationDocument(notification)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a notification owned by the given user.
func (r *NotificationRepository) FindByID(ctx context.Context, userID string, notificationID string) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	notificationID = strings.TrimSpace(notificationID)
	if userID == "" || notificationID == "" {
		return domain.Notification{}, errors.New("notification repository: user id and notification id are required")
	}

	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	notification := decodeNotificationDocument(doc.ID, doc.Data, doc.CreateTime)
	if notification.UserID != userID {
		return domain.Notification{}, pfirestore.WrapError("notifications.findById", status.Error(codes.NotFound, "notification not found"))
	}
	return notification, nil
}

// MarkRead flips the read flag for a notification owned by the given user.
// Marking an already-read notification is a no-op that keeps the original
// read timestamp.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, notificationID string, readAt time.Time) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	notificationID = strings.TrimSpace(notificationID)
	if userID == "" || notificationID == "" {
		return domain.Notification{}, errors.New("notification repository: user id and notification id are required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Notification{}, err
	}
	docRef := client.Collection(notificationsCollection).Doc(notificationID)

	var result domain.Notification
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc notificationDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode notification %s: %w", notificationID, err)
		}
		notification := decodeNotificationDocument(snap.Ref.ID, doc, snap.CreateTime)
		if notification.UserID != userID {
			return status.Error(codes.NotFound, "notification not found")
		}
		if notification.Read {
			result = notification
			return nil
		}

		stamped := readAt.UTC()
		notification.Read = true
		notification.ReadAt = &stamped
		result = notification
		return tx.Update(docRef, []firestore.Update{
			{Path: "read", Value: true},
			{Path: "readAt", Value: stamped},
		})
	})
	if err != nil {
		return domain.Notification{}, pfirestore.WrapError("notifications.markRead", err)
	}
	return result, nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository: user id is required")
	}

	limit, fetchLimit := pageWindow(filter.Pagination)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, fmt.Errorf("notification repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	types := normaliseStatusFilters(filter.Types)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if filter.UnreadOnly {
			q = q.Where("read", "==", false)
		}
		if len(types) == 1 {
			q = q.Where("type", "==", types[0])
		} else if len(types) > 1 {
			q = q.Where("type", "in", types)
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeCursor(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeNotificationDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return domain.CursorPage[domain.Notification]{Items: items, NextPageToken: nextToken}, nil
}

type notificationDocument struct {
	UserID    string            `firestore:"userId"`
	Type      string            `firestore:"type"`
	Title     string            `firestore:"title"`
	Body      string            `firestore:"body,omitempty"`
	Data      map[string]string `firestore:"data,omitempty"`
	Read      bool              `firestore:"read"`
	CreatedAt time.Time         `firestore:"createdAt"`
	ReadAt    *time.Time        `firestore:"readAt,omitempty"`
}

func encodeNotificationDocument(notification domain.Notification) notificationDocument {
	return notificationDocument{
		UserID:    strings.TrimSpace(notification.UserID),
		Type:      strings.TrimSpace(notification.Type),
		Title:     notification.Title,
		Body:      notification.Body,
		Data:      notification.Data,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt.UTC(),
		ReadAt:    normalizeTimePointer(notification.ReadAt),
	}
}

func decodeNotificationDocument(id string, doc notificationDocument, createdAt time.Time) domain.Notification {
	return domain.Notification{
		ID:        strings.TrimSpace(id),
		UserID:    strings.TrimSpace(doc.UserID),
		Type:      strings.TrimSpace(doc.Type),
		Title:     doc.Title,
		Body:      doc.Body,
		Data:      doc.Data,
		Read:      doc.Read,
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
		ReadAt:    normalizeTimePointer(doc.ReadAt),
	}
}
