package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/repositories"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error

	listFilter repositories.AuditLogFilter
	listResp   domain.CursorPage[domain.AuditLogEntry]
	listErr    error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAuditRepo) List(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.listFilter = filter
	return s.listResp, s.listErr
}

type captureAuditLogger struct {
	warnings []string
}

func (c *captureAuditLogger) Warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func newAuditService(t *testing.T, repo *stubAuditRepo, logger *captureAuditLogger, now time.Time) AuditLogService {
	t.Helper()
	seq := 0
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("test%04d", seq)
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewAuditLogService: %v", err)
	}
	return svc
}

func TestAuditLogServiceRecord(t *testing.T) {
	repo := &stubAuditRepo{}
	logger := &captureAuditLogger{}
	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuditService(t, repo, logger, now)

	svc.Record(context.Background(), AuditLogRecord{
		AdminID:    "  adm_1  ",
		Action:     "trade.dispute.resolve",
		EntityType: "trade",
		EntityID:   "trd_1",
		OldValues:  map[string]any{"status": "disputed", " ": "dropped"},
		NewValues:  map[string]any{"status": "completed", "resolution": "complete_trade"},
		RequestID:  "req-abc",
	})

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID != "adt_test0001" {
		t.Fatalf("id = %q", entry.ID)
	}
	if entry.AdminID != "adm_1" {
		t.Fatalf("admin id = %q", entry.AdminID)
	}
	if entry.CreatedAt != now {
		t.Fatalf("created at = %v", entry.CreatedAt)
	}
	if _, ok := entry.OldValues[" "]; ok {
		t.Fatal("blank keys must be dropped")
	}
	if entry.NewValues["resolution"] != "complete_trade" {
		t.Fatalf("new values = %v", entry.NewValues)
	}
	if len(logger.warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", logger.warnings)
	}
}

func TestAuditLogServiceRecordTruncatesLongValues(t *testing.T) {
	repo := &stubAuditRepo{}
	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuditService(t, repo, &captureAuditLogger{}, now)

	svc.Record(context.Background(), AuditLogRecord{
		AdminID:   "adm_1",
		Action:    "order.refund",
		NewValues: map[string]any{"note": strings.Repeat("x", 2000), "amount": 12500},
	})

	entry := repo.entries[0]
	note, ok := entry.NewValues["note"].(string)
	if !ok || len(note) != 512 {
		t.Fatalf("note length = %d, want 512", len(note))
	}
	if entry.NewValues["amount"] != 12500 {
		t.Fatalf("non-string values must pass through, got %v", entry.NewValues["amount"])
	}
}

func TestAuditLogServiceRecordDropsIncompleteEntries(t *testing.T) {
	repo := &stubAuditRepo{}
	logger := &captureAuditLogger{}
	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuditService(t, repo, logger, now)

	svc.Record(context.Background(), AuditLogRecord{Action: "trade.dispute.resolve"})
	svc.Record(context.Background(), AuditLogRecord{AdminID: "adm_1"})

	if len(repo.entries) != 0 {
		t.Fatalf("incomplete records must not persist, got %d", len(repo.entries))
	}
	if len(logger.warnings) != 2 {
		t.Fatalf("warnings = %v", logger.warnings)
	}
}

func TestAuditLogServiceRecordSwallowsRepositoryErrors(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("firestore down")}
	logger := &captureAuditLogger{}
	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuditService(t, repo, logger, now)

	svc.Record(context.Background(), AuditLogRecord{
		AdminID: "adm_1",
		Action:  "trade.dispute.resolve",
	})

	if len(logger.warnings) != 1 || !strings.Contains(logger.warnings[0], "append failed") {
		t.Fatalf("warnings = %v", logger.warnings)
	}
}

func TestAuditLogServiceList(t *testing.T) {
	repo := &stubAuditRepo{
		listResp: domain.CursorPage[domain.AuditLogEntry]{
			Items:         []domain.AuditLogEntry{{ID: "adt_1"}},
			NextPageToken: "next",
		},
	}
	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuditService(t, repo, &captureAuditLogger{}, now)

	page, err := svc.List(context.Background(), AuditLogFilter{
		AdminID:    "adm_1",
		EntityType: "trade",
		Pagination: Pagination{PageSize: 20},
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 || page.NextPageToken != "next" {
		t.Fatalf("page = %+v", page)
	}
	if repo.listFilter.AdminID != "adm_1" || repo.listFilter.EntityType != "trade" {
		t.Fatalf("filter = %+v", repo.listFilter)
	}
	if repo.listFilter.Pagination.PageSize != 20 {
		t.Fatalf("pagination = %+v", repo.listFilter.Pagination)
	}
}

func TestAuditLogServiceListPropagatesErrors(t *testing.T) {
	repo := &stubAuditRepo{listErr: errors.New("unavailable")}
	now := time.Date(2026, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuditService(t, repo, &captureAuditLogger{}, now)

	if _, err := svc.List(context.Background(), AuditLogFilter{}); err == nil {
		t.Fatal("expected error")
	}
}
