package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/services"
)

type stubAuditLogService struct {
	recordFn func(context.Context, services.AuditLogRecord)
	listFn   func(context.Context, services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error)
}

func (s *stubAuditLogService) Record(ctx context.Context, record services.AuditLogRecord) {
	if s.recordFn != nil {
		s.recordFn(ctx, record)
	}
}

func (s *stubAuditLogService) List(ctx context.Context, filter services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.AuditLogEntry]{}, nil
}

var _ services.AuditLogService = (*stubAuditLogService)(nil)

func newAdminRouter(trades services.TradeService, audit services.AuditLogService, deliveries services.NotificationService) chi.Router {
	handler := NewAdminHandlers(nil, trades, audit, deliveries)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func TestAdminHandlersResolveDispute(t *testing.T) {
	now := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)
	var captured services.ResolveDisputeCommand
	trades := &stubTradeService{
		resolveFn: func(ctx context.Context, cmd services.ResolveDisputeCommand) (services.TradeDetail, error) {
			captured = cmd
			resolution := cmd.Resolution
			return services.TradeDetail{
				Trade: services.Trade{ID: cmd.TradeID, Status: domain.TradeStatusCompleted},
				Dispute: &services.Dispute{
					ID:         "dsp_0001",
					TradeID:    cmd.TradeID,
					Resolution: &resolution,
					AdminNote:  cmd.AdminNote,
					ResolvedBy: cmd.AdminID,
					ResolvedAt: &now,
				},
			}, nil
		},
	}

	body := `{"resolution": "Favor_Initiator", "admin_note": "initiator shipped, receiver never did"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/trades/trd_0001/dispute:resolve", strings.NewReader(body))
	req = authed(req, "admin-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(trades, nil, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.TradeID != "trd_0001" || captured.AdminID != "admin-1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.Resolution != domain.DisputeResolutionFavorInitiator {
		t.Fatalf("expected resolution to be normalised, got %q", captured.Resolution)
	}

	var resp tradeDetailResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Trade.Status != "completed" || resp.Dispute == nil || resp.Dispute.Resolution != "favor_initiator" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestAdminHandlersResolveDisputeInvalidResolution(t *testing.T) {
	body := `{"resolution": "split_the_difference"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/trades/trd_0001/dispute:resolve", strings.NewReader(body))
	req = authed(req, "admin-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(&stubTradeService{}, nil, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersNonAdminForbidden(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil)
	req = authed(req, "user-1")
	rr := httptest.NewRecorder()
	newAdminRouter(nil, &stubAuditLogService{}, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestAdminHandlersGetTradeAsAdmin(t *testing.T) {
	trades := &stubTradeService{
		getFn: func(ctx context.Context, cmd services.GetTradeCommand) (services.TradeDetail, error) {
			if !cmd.AsAdmin || cmd.TradeID != "trd_0001" {
				t.Fatalf("unexpected command: %#v", cmd)
			}
			return services.TradeDetail{Trade: services.Trade{ID: cmd.TradeID, Status: domain.TradeStatusDisputed}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/trades/trd_0001", nil)
	req = authed(req, "admin-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(trades, nil, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminHandlersListAuditLogs(t *testing.T) {
	now := time.Date(2025, 4, 3, 11, 0, 0, 0, time.UTC)
	var captured services.AuditLogFilter
	audit := &stubAuditLogService{
		listFn: func(ctx context.Context, filter services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error) {
			captured = filter
			return domain.CursorPage[services.AuditLogEntry]{
				Items: []services.AuditLogEntry{
					{
						ID:         "adt_0001",
						AdminID:    "admin-1",
						Action:     "dispute.resolve",
						EntityType: "trade",
						EntityID:   "trd_0001",
						NewValues:  map[string]any{"resolution": "cancel"},
						RequestID:  "req-123",
						CreatedAt:  now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	target := "/admin/audit-logs?admin_id=admin-1&action=dispute.resolve&entity_type=trade&entity_id=trd_0001&created_after=2025-04-01T00:00:00Z&page_size=25"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = authed(req, "admin-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(nil, audit, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.AdminID != "admin-1" || captured.Action != "dispute.resolve" || captured.EntityType != "trade" || captured.EntityID != "trd_0001" {
		t.Fatalf("unexpected filter: %#v", captured)
	}
	if captured.DateRange.From == nil || !captured.DateRange.From.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected created_after filter, got %#v", captured.DateRange)
	}
	if captured.Pagination.PageSize != 25 {
		t.Fatalf("unexpected pagination: %#v", captured.Pagination)
	}

	var resp auditLogListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Action != "dispute.resolve" || resp.NextPageToken != "tok-next" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestAdminHandlersListAuditLogsInvalidDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/audit-logs?created_after=yesterday", nil)
	req = authed(req, "admin-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(nil, &stubAuditLogService{}, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminHandlersListDeliveries(t *testing.T) {
	now := time.Date(2025, 4, 3, 12, 0, 0, 0, time.UTC)
	var captured services.DeliveryFilter
	deliveries := &stubNotificationService{
		listDeliveriesFn: func(ctx context.Context, filter services.DeliveryFilter) (domain.CursorPage[services.NotificationDelivery], error) {
			captured = filter
			return domain.CursorPage[services.NotificationDelivery]{
				Items: []services.NotificationDelivery{
					{
						ID:             "dlv_0001",
						NotificationID: "ntf_0001",
						UserID:         "user-1",
						Type:           "order_shipped",
						Channel:        domain.ChannelEmail,
						Status:         domain.DeliveryFailed,
						Error:          "mailbox unavailable",
						AttemptedAt:    now,
					},
				},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/notifications/deliveries?user_id=user-1&channel=Email&status=FAILED", nil)
	req = authed(req, "admin-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(nil, nil, deliveries).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.Channel != "email" || captured.Status != "failed" {
		t.Fatalf("expected lowercased filters, got %#v", captured)
	}

	var resp deliveryListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Status != "failed" || resp.Items[0].Error != "mailbox unavailable" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}
