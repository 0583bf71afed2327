package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/repositories"
)

const auditIDPrefix = "adt_"

// AuditLogger defines the logging contract used by the audit writer service.
type AuditLogger interface {
	Warnf(format string, args ...any)
}

type auditLogService struct {
	repo  repositories.AuditLogRepository
	clock func() time.Time
	newID func() string
	log   AuditLogger
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      AuditLogger
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopAuditLogger{}
	}

	return &auditLogService{
		repo:  deps.Repository,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
		log:   logger,
	}, nil
}

// Record persists an audit log entry after sanitising its fields. The log is
// append-only and repository failures do not bubble up to callers; aborting
// the primary mutation over an audit write would lose the admin action itself.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(record)
	if entry.AdminID == "" || entry.Action == "" {
		s.log.Warnf("audit log entry dropped: admin id and action are required (action=%q)", record.Action)
		return
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		s.log.Warnf("audit log append failed for %s on %s/%s: %v", entry.Action, entry.EntityType, entry.EntityID, err)
	}
}

// List delegates to the repository to retrieve paginated audit logs.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	page, err := s.repo.List(ctx, auditFilterToRepo(filter))
	if err != nil {
		return domain.CursorPage[AuditLogEntry]{}, err
	}
	return page, nil
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:         auditIDPrefix + s.newID(),
		AdminID:    sanitizeAuditText(record.AdminID, 160),
		Action:     sanitizeAuditText(record.Action, 120),
		EntityType: sanitizeAuditText(record.EntityType, 80),
		EntityID:   sanitizeAuditText(record.EntityID, 160),
		OldValues:  sanitizeAuditValues(record.OldValues),
		NewValues:  sanitizeAuditValues(record.NewValues),
		RequestID:  sanitizeAuditText(record.RequestID, 128),
		CreatedAt:  s.clock(),
	}
}

type noopAuditLogger struct{}

func (noopAuditLogger) Warnf(string, ...any) {}

func sanitizeAuditValues(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]any, len(values))
	for key, value := range values {
		trimmedKey := sanitizeAuditText(key, 80)
		if trimmedKey == "" {
			continue
		}
		switch v := value.(type) {
		case string:
			result[trimmedKey] = sanitizeAuditText(v, 512)
		case fmt.Stringer:
			result[trimmedKey] = sanitizeAuditText(v.String(), 512)
		default:
			result[trimmedKey] = v
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func sanitizeAuditText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
