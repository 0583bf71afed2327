package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tarodan/api/internal/platform/auth"
	"github.com/tarodan/api/internal/platform/httpx"
	"github.com/tarodan/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 16 * 1024
)

type createOrderRequest struct {
	ProductID string `json:"product_id"`
}

type startPaymentRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type shipOrderRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes the purchase flow endpoints for authenticated users.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
}

// NewOrderHandlers constructs an order handler set.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/invoice", h.getInvoice)
	r.Get("/{orderID}/payments", h.listPayments)
	r.Post("/{orderID}:pay", h.startPayment)
	r.Post("/{orderID}:ship", h.shipOrder)
	r.Post("/{orderID}:confirm", h.confirmDelivery)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		BuyerID:   strings.TrimSpace(identity.UID),
		ProductID: strings.TrimSpace(req.ProductID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	pagination, err := parsePagination(query, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	role := strings.ToLower(strings.TrimSpace(query.Get("role")))
	switch role {
	case "", "buyer", "seller":
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "role must be buyer or seller", http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, services.ListOrdersCommand{
		UserID:     strings.TrimSpace(identity.UID),
		Role:       role,
		Status:     parseFilterValues(query["status"]),
		Pagination: pagination,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: orderID,
		UserID:  strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	url, err := h.orders.InvoiceURL(ctx, services.InvoiceURLCommand{
		OrderID: orderID,
		UserID:  strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, invoiceResponse{URL: url})
}

func (h *OrderHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	// GetOrder enforces party access before payments are exposed.
	if _, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: orderID,
		UserID:  strings.TrimSpace(identity.UID),
	}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payments, err := h.payments.ListPayments(ctx, orderID)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	items := make([]paymentPayload, 0, len(payments))
	for _, payment := range payments {
		items = append(items, buildPaymentPayload(payment))
	}
	writeJSONResponse(w, http.StatusOK, paymentListResponse{Items: items})
}

func (h *OrderHandlers) startPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req startPaymentRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	session, err := h.orders.StartPayment(ctx, services.StartPaymentCommand{
		OrderID:        orderID,
		BuyerID:        strings.TrimSpace(identity.UID),
		SuccessURL:     strings.TrimSpace(req.SuccessURL),
		CancelURL:      strings.TrimSpace(req.CancelURL),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentSessionPayload{
		PaymentID:   strings.TrimSpace(session.PaymentID),
		Provider:    strings.TrimSpace(session.Provider),
		SessionID:   strings.TrimSpace(session.SessionID),
		RedirectURL: strings.TrimSpace(session.RedirectURL),
		ExpiresAt:   formatTime(session.ExpiresAt),
	})
}

func (h *OrderHandlers) shipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req shipOrderRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.ShipOrder(ctx, services.ShipOrderCommand{
		OrderID:        orderID,
		SellerID:       strings.TrimSpace(identity.UID),
		Carrier:        strings.TrimSpace(req.Carrier),
		TrackingNumber: strings.TrimSpace(req.TrackingNumber),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.ConfirmDelivery(ctx, services.ConfirmDeliveryCommand{
		OrderID: orderID,
		BuyerID: strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(ctx, w)
	if !ok {
		return
	}

	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	// Cancellation reason is optional, so an absent body is accepted.
	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		} else {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		UserID:  strings.TrimSpace(identity.UID),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireService(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func orderIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func decodeOrderBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
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

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type invoiceResponse struct {
	URL string `json:"url"`
}

type orderPayload struct {
	ID          string       `json:"id"`
	OrderNumber string       `json:"order_number"`
	BuyerID     string       `json:"buyer_id"`
	SellerID    string       `json:"seller_id"`
	ProductID   string       `json:"product_id"`
	Total       moneyPayload `json:"total"`
	Status      string       `json:"status"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at,omitempty"`
	PaidAt      string       `json:"paid_at,omitempty"`
	ShippedAt   string       `json:"shipped_at,omitempty"`
	DeliveredAt string       `json:"delivered_at,omitempty"`
	CompletedAt string       `json:"completed_at,omitempty"`
	CancelledAt string       `json:"cancelled_at,omitempty"`
	RefundedAt  string       `json:"refunded_at,omitempty"`
}

type paymentSessionPayload struct {
	PaymentID   string `json:"payment_id"`
	Provider    string `json:"provider"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type paymentListResponse struct {
	Items []paymentPayload `json:"items"`
}

type paymentPayload struct {
	ID         string       `json:"id"`
	OrderID    string       `json:"order_id"`
	Provider   string       `json:"provider"`
	Status     string       `json:"status"`
	Amount     moneyPayload `json:"amount"`
	CreatedAt  string       `json:"created_at"`
	CapturedAt string       `json:"captured_at,omitempty"`
	RefundedAt string       `json:"refunded_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		BuyerID:     strings.TrimSpace(order.BuyerID),
		SellerID:    strings.TrimSpace(order.SellerID),
		ProductID:   strings.TrimSpace(order.ProductID),
		Total:       buildMoneyPayload(order.Total),
		Status:      strings.TrimSpace(string(order.Status)),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
		PaidAt:      formatTime(pointerTime(order.PaidAt)),
		ShippedAt:   formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt: formatTime(pointerTime(order.DeliveredAt)),
		CompletedAt: formatTime(pointerTime(order.CompletedAt)),
		CancelledAt: formatTime(pointerTime(order.CancelledAt)),
		RefundedAt:  formatTime(pointerTime(order.RefundedAt)),
	}
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:         strings.TrimSpace(payment.ID),
		OrderID:    strings.TrimSpace(payment.OrderID),
		Provider:   strings.TrimSpace(payment.Provider),
		Status:     strings.TrimSpace(string(payment.Status)),
		Amount:     buildMoneyPayload(payment.Amount),
		CreatedAt:  formatTime(payment.CreatedAt),
		CapturedAt: formatTime(pointerTime(payment.CapturedAt)),
		RefundedAt: formatTime(pointerTime(payment.RefundedAt)),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "not a party to this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_error", "payment gateway rejected the request", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
