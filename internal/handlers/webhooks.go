package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tarodan/api/internal/payments"
	"github.com/tarodan/api/internal/platform/httpx"
	"github.com/tarodan/api/internal/services"
)

// Stripe caps event payloads well below this; anything larger is not a webhook.
const maxWebhookBodySize = 256 * 1024

const stripeSignatureHeader = "Stripe-Signature"

// WebhookVerifier validates a raw gateway callback and returns the normalised event.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (payments.WebhookEvent, error)
}

// WebhookHandlers terminates payment gateway callbacks. Signature verification
// happens here; reconciliation is delegated to the payment service.
type WebhookHandlers struct {
	verifier WebhookVerifier
	payments services.PaymentService
}

// NewWebhookHandlers constructs the webhook handler set.
func NewWebhookHandlers(verifier WebhookVerifier, paymentSvc services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{
		verifier: verifier,
		payments: paymentSvc,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil || h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read webhook payload", http.StatusBadRequest))
		return
	}
	if int64(len(payload)) > maxWebhookBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	event, err := h.verifier.Verify(payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to verify webhook payload", http.StatusBadRequest))
		return
	}

	// Unmapped event types are acknowledged so the gateway stops retrying.
	if strings.TrimSpace(event.Type) == "" {
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
		return
	}

	err = h.payments.HandleGatewayEvent(ctx, services.GatewayEventCommand{
		Provider: event.Provider,
		EventID:  event.EventID,
		Type:     event.Type,
		IntentID: event.IntentID,
		Raw:      event.Raw,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrPaymentNotFound):
			// No matching payment intent; acknowledge so the gateway does not
			// retry an event this system will never be able to apply.
			writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
		default:
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook event", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
}

type webhookAckResponse struct {
	Received bool `json:"received"`
}
