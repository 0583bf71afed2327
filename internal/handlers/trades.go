package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/platform/auth"
	"github.com/tarodan/api/internal/platform/httpx"
	"github.com/tarodan/api/internal/services"
)

const (
	defaultTradePageSize = 20
	maxTradePageSize     = 100
	maxTradeBodySize     = 32 * 1024
)

type createTradeRequest struct {
	ReceiverID        string        `json:"receiver_id"`
	InitiatorProducts []string      `json:"initiator_product_ids"`
	ReceiverProducts  []string      `json:"receiver_product_ids"`
	CashAdjustment    *moneyRequest `json:"cash_adjustment"`
	Message           string        `json:"message"`
}

type counterTradeRequest struct {
	InitiatorProducts []string      `json:"initiator_product_ids"`
	ReceiverProducts  []string      `json:"receiver_product_ids"`
	CashAdjustment    *moneyRequest `json:"cash_adjustment"`
	Message           string        `json:"message"`
}

type shipTradeRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

type raiseDisputeRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// TradeHandlers exposes the trade lifecycle endpoints for authenticated users.
type TradeHandlers struct {
	authn  *auth.Authenticator
	trades services.TradeService
}

// NewTradeHandlers constructs a trade handler set.
func NewTradeHandlers(authn *auth.Authenticator, trades services.TradeService) *TradeHandlers {
	return &TradeHandlers{
		authn:  authn,
		trades: trades,
	}
}

// Routes registers the /trades endpoints.
func (h *TradeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createTrade)
	r.Get("/", h.listTrades)
	r.Get("/{tradeID}", h.getTrade)
	r.Post("/{tradeID}:accept", h.acceptTrade)
	r.Post("/{tradeID}:reject", h.rejectTrade)
	r.Post("/{tradeID}:counter", h.counterTrade)
	r.Post("/{tradeID}:cancel", h.cancelTrade)
	r.Post("/{tradeID}:ship", h.shipTrade)
	r.Post("/{tradeID}:confirm", h.confirmTrade)
	r.Post("/{tradeID}:dispute", h.raiseDispute)
}

func (h *TradeHandlers) createTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	var req createTradeRequest
	if !decodeTradeBody(ctx, w, r, &req) {
		return
	}

	trade, err := h.trades.CreateTrade(ctx, services.CreateTradeCommand{
		InitiatorID:       strings.TrimSpace(identity.UID),
		ReceiverID:        strings.TrimSpace(req.ReceiverID),
		InitiatorProducts: req.InitiatorProducts,
		ReceiverProducts:  req.ReceiverProducts,
		CashAdjustment:    req.CashAdjustment.toDomain(),
		Message:           strings.TrimSpace(req.Message),
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, tradeResponse{Trade: buildTradePayload(trade)})
}

func (h *TradeHandlers) listTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	pagination, err := parsePagination(query, defaultTradePageSize, maxTradePageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.trades.ListTrades(ctx, services.ListTradesCommand{
		UserID:     strings.TrimSpace(identity.UID),
		Status:     parseFilterValues(query["status"]),
		Pagination: pagination,
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	items := make([]tradePayload, 0, len(page.Items))
	for _, trade := range page.Items {
		items = append(items, buildTradePayload(trade))
	}
	writeJSONResponse(w, http.StatusOK, tradeListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *TradeHandlers) getTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	tradeID, ok := tradeIDParam(ctx, w, r)
	if !ok {
		return
	}

	detail, err := h.trades.GetTrade(ctx, services.GetTradeCommand{
		TradeID: tradeID,
		UserID:  strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildTradeDetailPayload(detail))
}

func (h *TradeHandlers) acceptTrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.trades.AcceptTrade)
}

func (h *TradeHandlers) rejectTrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.trades.RejectTrade)
}

func (h *TradeHandlers) cancelTrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.trades.CancelTrade)
}

func (h *TradeHandlers) confirmTrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.trades.ConfirmTrade)
}

// respond handles the body-less lifecycle actions sharing the same command shape.
func (h *TradeHandlers) respond(w http.ResponseWriter, r *http.Request, action func(context.Context, services.RespondTradeCommand) (services.Trade, error)) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	tradeID, ok := tradeIDParam(ctx, w, r)
	if !ok {
		return
	}

	trade, err := action(ctx, services.RespondTradeCommand{
		TradeID: tradeID,
		UserID:  strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, tradeResponse{Trade: buildTradePayload(trade)})
}

func (h *TradeHandlers) counterTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	tradeID, ok := tradeIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req counterTradeRequest
	if !decodeTradeBody(ctx, w, r, &req) {
		return
	}

	trade, err := h.trades.CounterTrade(ctx, services.CounterTradeCommand{
		TradeID:           tradeID,
		UserID:            strings.TrimSpace(identity.UID),
		InitiatorProducts: req.InitiatorProducts,
		ReceiverProducts:  req.ReceiverProducts,
		CashAdjustment:    req.CashAdjustment.toDomain(),
		Message:           strings.TrimSpace(req.Message),
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, tradeResponse{Trade: buildTradePayload(trade)})
}

func (h *TradeHandlers) shipTrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	tradeID, ok := tradeIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req shipTradeRequest
	if !decodeTradeBody(ctx, w, r, &req) {
		return
	}

	trade, err := h.trades.ShipTrade(ctx, services.ShipTradeCommand{
		TradeID:        tradeID,
		UserID:         strings.TrimSpace(identity.UID),
		Carrier:        strings.TrimSpace(req.Carrier),
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, tradeResponse{Trade: buildTradePayload(trade)})
}

func (h *TradeHandlers) raiseDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	tradeID, ok := tradeIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req raiseDisputeRequest
	if !decodeTradeBody(ctx, w, r, &req) {
		return
	}

	dispute, err := h.trades.RaiseDispute(ctx, services.RaiseDisputeCommand{
		TradeID:     tradeID,
		UserID:      strings.TrimSpace(identity.UID),
		Reason:      strings.TrimSpace(req.Reason),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		writeTradeError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, disputeResponse{Dispute: buildDisputePayload(dispute)})
}

func (h *TradeHandlers) requireService(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.trades == nil {
		httpx.WriteError(ctx, w, httpx.NewError("trade_service_unavailable", "trade service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func tradeIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	tradeID := strings.TrimSpace(chi.URLParam(r, "tradeID"))
	if tradeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "trade id is required", http.StatusBadRequest))
		return "", false
	}
	return tradeID, true
}

func decodeTradeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxTradeBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

type tradeListResponse struct {
	Items         []tradePayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type tradeResponse struct {
	Trade tradePayload `json:"trade"`
}

type tradeDetailResponse struct {
	Trade     tradePayload      `json:"trade"`
	Shipments []shipmentPayload `json:"shipments"`
	Dispute   *disputePayload   `json:"dispute,omitempty"`
}

type disputeResponse struct {
	Dispute disputePayload `json:"dispute"`
}

type tradePayload struct {
	ID                 string             `json:"id"`
	InitiatorID        string             `json:"initiator_id"`
	ReceiverID         string             `json:"receiver_id"`
	Status             string             `json:"status"`
	InitiatorItems     []tradeItemPayload `json:"initiator_items"`
	ReceiverItems      []tradeItemPayload `json:"receiver_items"`
	CashAdjustment     *moneyPayload      `json:"cash_adjustment,omitempty"`
	Message            string             `json:"message,omitempty"`
	CounterOfID        string             `json:"counter_of_id,omitempty"`
	InitiatorShipped   bool               `json:"initiator_shipped"`
	ReceiverShipped    bool               `json:"receiver_shipped"`
	InitiatorConfirmed bool               `json:"initiator_confirmed"`
	ReceiverConfirmed  bool               `json:"receiver_confirmed"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at,omitempty"`
	AcceptedAt         string             `json:"accepted_at,omitempty"`
	ShippedAt          string             `json:"shipped_at,omitempty"`
	CompletedAt        string             `json:"completed_at,omitempty"`
	CancelledAt        string             `json:"cancelled_at,omitempty"`
	DisputedAt         string             `json:"disputed_at,omitempty"`
}

type tradeItemPayload struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title,omitempty"`
}

type disputePayload struct {
	ID          string `json:"id"`
	TradeID     string `json:"trade_id"`
	RaisedBy    string `json:"raised_by"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	AdminNote   string `json:"admin_note,omitempty"`
	ResolvedBy  string `json:"resolved_by,omitempty"`
	CreatedAt   string `json:"created_at"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
}

func buildTradePayload(trade services.Trade) tradePayload {
	payload := tradePayload{
		ID:                 strings.TrimSpace(trade.ID),
		InitiatorID:        strings.TrimSpace(trade.InitiatorID),
		ReceiverID:         strings.TrimSpace(trade.ReceiverID),
		Status:             strings.TrimSpace(string(trade.Status)),
		InitiatorItems:     buildTradeItemPayloads(trade.InitiatorItems),
		ReceiverItems:      buildTradeItemPayloads(trade.ReceiverItems),
		Message:            strings.TrimSpace(trade.Message),
		InitiatorShipped:   trade.InitiatorShipped,
		ReceiverShipped:    trade.ReceiverShipped,
		InitiatorConfirmed: trade.InitiatorConfirmed,
		ReceiverConfirmed:  trade.ReceiverConfirmed,
		CreatedAt:          formatTime(trade.CreatedAt),
		UpdatedAt:          formatTime(trade.UpdatedAt),
		AcceptedAt:         formatTime(pointerTime(trade.AcceptedAt)),
		ShippedAt:          formatTime(pointerTime(trade.ShippedAt)),
		CompletedAt:        formatTime(pointerTime(trade.CompletedAt)),
		CancelledAt:        formatTime(pointerTime(trade.CancelledAt)),
		DisputedAt:         formatTime(pointerTime(trade.DisputedAt)),
	}
	if trade.CashAdjustment != nil {
		money := buildMoneyPayload(*trade.CashAdjustment)
		payload.CashAdjustment = &money
	}
	if trade.CounterOfID != nil {
		payload.CounterOfID = strings.TrimSpace(*trade.CounterOfID)
	}
	return payload
}

func buildTradeItemPayloads(items []domain.TradeItem) []tradeItemPayload {
	payloads := make([]tradeItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, tradeItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Title:     strings.TrimSpace(item.Title),
		})
	}
	return payloads
}

func buildDisputePayload(dispute services.Dispute) disputePayload {
	payload := disputePayload{
		ID:          strings.TrimSpace(dispute.ID),
		TradeID:     strings.TrimSpace(dispute.TradeID),
		RaisedBy:    strings.TrimSpace(dispute.RaisedBy),
		Reason:      strings.TrimSpace(dispute.Reason),
		Description: strings.TrimSpace(dispute.Description),
		AdminNote:   strings.TrimSpace(dispute.AdminNote),
		ResolvedBy:  strings.TrimSpace(dispute.ResolvedBy),
		CreatedAt:   formatTime(dispute.CreatedAt),
		ResolvedAt:  formatTime(pointerTime(dispute.ResolvedAt)),
	}
	if dispute.Resolution != nil {
		payload.Resolution = strings.TrimSpace(string(*dispute.Resolution))
	}
	return payload
}

func buildTradeDetailPayload(detail services.TradeDetail) tradeDetailResponse {
	response := tradeDetailResponse{
		Trade:     buildTradePayload(detail.Trade),
		Shipments: make([]shipmentPayload, 0, len(detail.Shipments)),
	}
	for _, shipment := range detail.Shipments {
		response.Shipments = append(response.Shipments, buildShipmentPayload(shipment))
	}
	if detail.Dispute != nil {
		dispute := buildDisputePayload(*detail.Dispute)
		response.Dispute = &dispute
	}
	return response
}

func writeTradeError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrTradeInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTradeUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("trade_forbidden", "not a party to this trade", http.StatusForbidden))
	case errors.Is(err, services.ErrTradeNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("trade_not_found", "trade not found", http.StatusNotFound))
	case errors.Is(err, services.ErrTradeInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("trade_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrTradeConflict):
		httpx.WriteError(ctx, w, httpx.NewError("trade_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("trade_error", "failed to process trade request", http.StatusInternalServerError))
	}
}
