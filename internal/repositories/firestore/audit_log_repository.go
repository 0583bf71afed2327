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

const auditLogsCollection = "auditLogs"

// AuditLogRepository persists immutable audit trail entries. Entries are only
// ever created; there is no update or delete path.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection, nil, nil)
	return &AuditLogRepository{base: base}, nil
}

// Append stores one audit entry.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		return errors.New("audit log repository: entry id is required")
	}
	if _, err := r.base.Create(ctx, entryID, encodeAuditLogDocument(entry)); err != nil {
		return err
	}
	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	limit, fetchLimit := pageWindow(filter.Pagination)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("audit log repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	adminID := strings.TrimSpace(filter.AdminID)
	action := strings.TrimSpace(filter.Action)
	entityType := strings.TrimSpace(filter.EntityType)
	entityID := strings.TrimSpace(filter.EntityID)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if adminID != "" {
			q = q.Where("adminId", "==", adminID)
		}
		if action != "" {
			q = q.Where("action", "==", action)
		}
		if entityType != "" {
			q = q.Where("entityType", "==", entityType)
		}
		if entityID != "" {
			q = q.Where("entityId", "==", entityID)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
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
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeCursor(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeAuditLogDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return domain.CursorPage[domain.AuditLogEntry]{Items: items, NextPageToken: nextToken}, nil
}

type auditLogDocument struct {
	AdminID    string         `firestore:"adminId"`
	Action     string         `firestore:"action"`
	EntityType string         `firestore:"entityType,omitempty"`
	EntityID   string         `firestore:"entityId,omitempty"`
	OldValues  map[string]any `firestore:"oldValues,omitempty"`
	NewValues  map[string]any `firestore:"newValues,omitempty"`
	RequestID  string         `firestore:"requestId,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
}

func encodeAuditLogDocument(entry domain.AuditLogEntry) auditLogDocument {
	return auditLogDocument{
		AdminID:    strings.TrimSpace(entry.AdminID),
		Action:     strings.TrimSpace(entry.Action),
		EntityType: strings.TrimSpace(entry.EntityType),
		EntityID:   strings.TrimSpace(entry.EntityID),
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		RequestID:  strings.TrimSpace(entry.RequestID),
		CreatedAt:  entry.CreatedAt.UTC(),
	}
}

func decodeAuditLogDocument(id string, doc auditLogDocument, createdAt time.Time) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:         strings.TrimSpace(id),
		AdminID:    strings.TrimSpace(doc.AdminID),
		Action:     strings.TrimSpace(doc.Action),
		EntityType: strings.TrimSpace(doc.EntityType),
		EntityID:   strings.TrimSpace(doc.EntityID),
		OldValues:  doc.OldValues,
		NewValues:  doc.NewValues,
		RequestID:  strings.TrimSpace(doc.RequestID),
		CreatedAt:  chooseTime(doc.CreatedAt, createdAt),
	}
}
