package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tarodan/api/internal/platform/auth"
	"github.com/tarodan/api/internal/platform/httpx"
	"github.com/tarodan/api/internal/services"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

// NotificationHandlers serves the authenticated user's in-app inbox.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
}

// NewNotificationHandlers constructs a notification handler set.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService) *NotificationHandlers {
	return &NotificationHandlers{
		authn:         authn,
		notifications: notifications,
	}
}

// Routes registers the /notifications endpoints.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listNotifications)
	r.Post("/{notificationID}:read", h.markRead)
}

func (h *NotificationHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	pagination, err := parsePagination(query, defaultNotificationPageSize, maxNotificationPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	unreadOnly := false
	if raw := strings.TrimSpace(query.Get("unread_only")); raw != "" {
		unreadOnly, err = strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unread_only must be a boolean", http.StatusBadRequest))
			return
		}
	}

	page, err := h.notifications.ListNotifications(ctx, services.ListNotificationsCommand{
		UserID:     strings.TrimSpace(identity.UID),
		UnreadOnly: unreadOnly,
		Pagination: pagination,
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	items := make([]notificationPayload, 0, len(page.Items))
	for _, notification := range page.Items {
		items = append(items, buildNotificationPayload(notification))
	}
	writeJSONResponse(w, http.StatusOK, notificationListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return
	}

	notification, err := h.notifications.MarkRead(ctx, services.MarkNotificationReadCommand{
		UserID:         strings.TrimSpace(identity.UID),
		NotificationID: notificationID,
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, notificationResponse{Notification: buildNotificationPayload(notification)})
}

func (h *NotificationHandlers) requireService(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type notificationListResponse struct {
	Items         []notificationPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type notificationResponse struct {
	Notification notificationPayload `json:"notification"`
}

type notificationPayload struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt string            `json:"created_at"`
	ReadAt    string            `json:"read_at,omitempty"`
}

func buildNotificationPayload(notification services.Notification) notificationPayload {
	return notificationPayload{
		ID:        strings.TrimSpace(notification.ID),
		Type:      strings.TrimSpace(notification.Type),
		Title:     notification.Title,
		Body:      notification.Body,
		Data:      notification.Data,
		Read:      notification.Read,
		CreatedAt: formatTime(notification.CreatedAt),
		ReadAt:    formatTime(pointerTime(notification.ReadAt)),
	}
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("notification_error", "failed to process notification request", http.StatusInternalServerError))
	}
}
