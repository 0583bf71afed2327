package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/platform/auth"
	"github.com/tarodan/api/internal/platform/httpx"
	"github.com/tarodan/api/internal/services"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
	maxAdminBodySize     = 16 * 1024
)

type resolveDisputeRequest struct {
	Resolution string `json:"resolution"`
	AdminNote  string `json:"admin_note"`
}

// AdminHandlers exposes the staff-only surfaces: dispute resolution, the audit
// log, and the notification delivery log.
type AdminHandlers struct {
	authn      *auth.Authenticator
	trades     services.TradeService
	audit      services.AuditLogService
	deliveries services.NotificationService
}

// NewAdminHandlers constructs the admin handler set.
func NewAdminHandlers(authn *auth.Authenticator, trades services.TradeService, audit services.AuditLogService, deliveries services.NotificationService) *AdminHandlers {
	return &AdminHandlers{
		authn:      authn,
		trades:     trades,
		audit:      audit,
		deliveries: deliveries,
	}
}

// Routes registers the /admin endpoints. The whole group requires the admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/trades/{tradeID}", h.getTrade)
	r.Post("/trades/{tradeID}/dispute:resolve", h.resolveDispute)
	r.Get("/audit-logs", h.listAuditLogs)
	r.Get("/notifications/deliveries", h.listDeliveries)
}

func (h *AdminHandlers) getTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireAdminIdentity(ctx, w)
	if !ok {
		return
	}
	if h.trades == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trade_service_unavailable", "trade service unavailable", http.StatusServiceUnavailable))
		return
	}

	tradeID, ok := tradeIDParam(ctx, w, r)
	if !ok {
		return
	}

	detail, err := h.trades.GetTrade(ctx, services.GetTradeCommand{
		TradeID: tradeID,
		UserID:  strings.TrimSpace(identity.UID),
		AsAdmin: true,
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildTradeDetailPayload(detail))
}

func (h *AdminHandlers) resolveDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireAdminIdentity(ctx, w)
	if !ok {
		return
	}
	if h.trades == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trade_service_unavailable", "trade service unavailable", http.StatusServiceUnavailable))
		return
	}

	tradeID, ok := tradeIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req resolveDisputeRequest
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		}
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	resolution := domain.DisputeResolution(strings.ToLower(strings.TrimSpace(req.Resolution)))
	if !resolution.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "resolution must be one of complete_trade, cancel, favor_initiator, favor_receiver", http.StatusBadRequest))
		return
	}

	detail, err := h.trades.ResolveDispute(ctx, services.ResolveDisputeCommand{
		TradeID:    tradeID,
		AdminID:    strings.TrimSpace(identity.UID),
		Resolution: resolution,
		AdminNote:  strings.TrimSpace(req.AdminNote),
		RequestID:  middleware.GetReqID(ctx),
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildTradeDetailPayload(detail))
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(ctx, w); !ok {
		return
	}
	if h.audit == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_service_unavailable", "audit log service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pagination, err := parsePagination(query, defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	dateRange, ok := parseDateRange(ctx, w, query.Get("created_after"), query.Get("created_before"))
	if !ok {
		return
	}

	page, err := h.audit.List(ctx, services.AuditLogFilter{
		AdminID:    strings.TrimSpace(query.Get("admin_id")),
		Action:     strings.TrimSpace(query.Get("action")),
		EntityType: strings.TrimSpace(query.Get("entity_type")),
		EntityID:   strings.TrimSpace(query.Get("entity_id")),
		DateRange:  dateRange,
		Pagination: pagination,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_error", "failed to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildAuditLogPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, auditLogListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminHandlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireAdminIdentity(ctx, w); !ok {
		return
	}
	if h.deliveries == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pagination, err := parsePagination(query, defaultAdminPageSize, maxAdminPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	dateRange, ok := parseDateRange(ctx, w, query.Get("attempted_after"), query.Get("attempted_before"))
	if !ok {
		return
	}

	page, err := h.deliveries.ListDeliveries(ctx, services.DeliveryFilter{
		UserID:     strings.TrimSpace(query.Get("user_id")),
		Channel:    strings.ToLower(strings.TrimSpace(query.Get("channel"))),
		Status:     strings.ToLower(strings.TrimSpace(query.Get("status"))),
		DateRange:  dateRange,
		Pagination: pagination,
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	items := make([]deliveryPayload, 0, len(page.Items))
	for _, delivery := range page.Items {
		items = append(items, buildDeliveryPayload(delivery))
	}
	writeJSONResponse(w, http.StatusOK, deliveryListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func requireAdminIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	if !identity.HasRole(auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func parseDateRange(ctx context.Context, w http.ResponseWriter, afterRaw, beforeRaw string) (domain.RangeQuery[time.Time], bool) {
	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(afterRaw); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "after filter must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return dateRange, false
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(beforeRaw); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "before filter must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return dateRange, false
		}
		dateRange.To = &ts
	}
	return dateRange, true
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID         string         `json:"id"`
	AdminID    string         `json:"admin_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

type deliveryListResponse struct {
	Items         []deliveryPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type deliveryPayload struct {
	ID             string `json:"id"`
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	AttemptedAt    string `json:"attempted_at"`
}

func buildAuditLogPayload(entry services.AuditLogEntry) auditLogPayload {
	return auditLogPayload{
		ID:         strings.TrimSpace(entry.ID),
		AdminID:    strings.TrimSpace(entry.AdminID),
		Action:     strings.TrimSpace(entry.Action),
		EntityType: strings.TrimSpace(entry.EntityType),
		EntityID:   strings.TrimSpace(entry.EntityID),
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		RequestID:  strings.TrimSpace(entry.RequestID),
		CreatedAt:  formatTime(entry.CreatedAt),
	}
}

func buildDeliveryPayload(delivery services.NotificationDelivery) deliveryPayload {
	return deliveryPayload{
		ID:             strings.TrimSpace(delivery.ID),
		NotificationID: strings.TrimSpace(delivery.NotificationID),
		UserID:         strings.TrimSpace(delivery.UserID),
		Type:           strings.TrimSpace(delivery.Type),
		Channel:        strings.TrimSpace(string(delivery.Channel)),
		Status:         strings.TrimSpace(string(delivery.Status)),
		Error:          strings.TrimSpace(delivery.Error),
		AttemptedAt:    formatTime(delivery.AttemptedAt),
	}
}
