package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/services"
)

type stubNotificationService struct {
	sendFn           func(context.Context, services.SendNotificationCommand) (services.DispatchResult, error)
	listFn           func(context.Context, services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error)
	markReadFn       func(context.Context, services.MarkNotificationReadCommand) (services.Notification, error)
	listDeliveriesFn func(context.Context, services.DeliveryFilter) (domain.CursorPage[services.NotificationDelivery], error)
}

func (s *stubNotificationService) Send(ctx context.Context, cmd services.SendNotificationCommand) (services.DispatchResult, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, cmd)
	}
	return services.DispatchResult{}, errors.New("not implemented")
}

func (s *stubNotificationService) ListNotifications(ctx context.Context, cmd services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.Notification]{}, nil
}

func (s *stubNotificationService) MarkRead(ctx context.Context, cmd services.MarkNotificationReadCommand) (services.Notification, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, cmd)
	}
	return services.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationService) ListDeliveries(ctx context.Context, filter services.DeliveryFilter) (domain.CursorPage[services.NotificationDelivery], error) {
	if s.listDeliveriesFn != nil {
		return s.listDeliveriesFn(ctx, filter)
	}
	return domain.CursorPage[services.NotificationDelivery]{}, nil
}

var _ services.NotificationService = (*stubNotificationService)(nil)

func newNotificationRouter(service services.NotificationService) chi.Router {
	handler := NewNotificationHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/notifications", handler.Routes)
	return router
}

func TestNotificationHandlersList(t *testing.T) {
	now := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	service := &stubNotificationService{
		listFn: func(ctx context.Context, cmd services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error) {
			if cmd.UserID != "user-1" || cmd.UnreadOnly {
				t.Fatalf("unexpected command: %#v", cmd)
			}
			return domain.CursorPage[services.Notification]{
				Items: []services.Notification{
					{
						ID:        "ntf_0001",
						UserID:    "user-1",
						Type:      "trade_accepted",
						Title:     "Trade accepted",
						Body:      "Your trade offer was accepted.",
						Data:      map[string]string{"trade_id": "trd_0001"},
						CreatedAt: now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/notifications/", nil)
	req = authed(req, "user-1")
	rr := httptest.NewRecorder()
	newNotificationRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp notificationListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "tok-next" {
		t.Fatalf("unexpected response: %#v", resp)
	}
	item := resp.Items[0]
	if item.Type != "trade_accepted" || item.Read || item.Data["trade_id"] != "trd_0001" {
		t.Fatalf("unexpected notification payload: %#v", item)
	}
}

func TestNotificationHandlersListUnreadOnly(t *testing.T) {
	var captured services.ListNotificationsCommand
	service := &stubNotificationService{
		listFn: func(ctx context.Context, cmd services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error) {
			captured = cmd
			return domain.CursorPage[services.Notification]{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/notifications/?unread_only=true&page_size=5", nil)
	req = authed(req, "user-1")
	rr := httptest.NewRecorder()
	newNotificationRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !captured.UnreadOnly || captured.Pagination.PageSize != 5 {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestNotificationHandlersListInvalidUnreadOnly(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications/?unread_only=maybe", nil)
	req = authed(req, "user-1")
	rr := httptest.NewRecorder()
	newNotificationRouter(&stubNotificationService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestNotificationHandlersMarkRead(t *testing.T) {
	now := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	service := &stubNotificationService{
		markReadFn: func(ctx context.Context, cmd services.MarkNotificationReadCommand) (services.Notification, error) {
			if cmd.UserID != "user-1" || cmd.NotificationID != "ntf_0001" {
				t.Fatalf("unexpected command: %#v", cmd)
			}
			return services.Notification{
				ID:        "ntf_0001",
				UserID:    "user-1",
				Type:      "trade_accepted",
				Read:      true,
				CreatedAt: now.Add(-time.Hour),
				ReadAt:    &now,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/notifications/ntf_0001:read", nil)
	req = authed(req, "user-1")
	rr := httptest.NewRecorder()
	newNotificationRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp notificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Notification.Read || resp.Notification.ReadAt == "" {
		t.Fatalf("expected read notification, got %#v", resp.Notification)
	}
}

func TestNotificationHandlersMarkReadNotFound(t *testing.T) {
	service := &stubNotificationService{
		markReadFn: func(context.Context, services.MarkNotificationReadCommand) (services.Notification, error) {
			return services.Notification{}, services.ErrNotificationNotFound
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/notifications/ntf_missing:read", nil)
	req = authed(req, "user-1")
	rr := httptest.NewRecorder()
	newNotificationRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestNotificationHandlersUnauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/notifications/", nil)
	rr := httptest.NewRecorder()
	newNotificationRouter(&stubNotificationService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
