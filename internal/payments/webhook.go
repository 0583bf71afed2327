package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Normalised gateway event types emitted to the payment reconciliation flow.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// WebhookEvent is a provider-agnostic view of a verified gateway callback.
// Events the provider does not map to a normalised type carry an empty Type
// and should be acknowledged without processing.
type WebhookEvent struct {
	Provider string
	EventID  string
	Type     string
	IntentID string
	Raw      map[string]any
}

// StripeWebhookVerifier validates Stripe webhook signatures and normalises
// the event payload.
type StripeWebhookVerifier struct {
	secret string
}

// NewStripeWebhookVerifier constructs a verifier bound to the endpoint's
// signing secret.
func NewStripeWebhookVerifier(secret string) (*StripeWebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: stripe webhook secret is required")
	}
	return &StripeWebhookVerifier{secret: secret}, nil
}

// Verify checks the Stripe-Signature header against the payload and returns
// the normalised event.
func (v *StripeWebhookVerifier) Verify(payload []byte, signatureHeader string) (WebhookEvent, error) {
	if v == nil {
		return WebhookEvent{}, errors.New("payments: stripe webhook verifier is nil")
	}

	// Tolerate API version drift between the Stripe account and the pinned
	// SDK; the handler consumes a small, stable subset of the payload.
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return normaliseStripeEvent(event), nil
}

func normaliseStripeEvent(event stripe.Event) WebhookEvent {
	normalised := WebhookEvent{
		Provider: "stripe",
		EventID:  event.ID,
		Raw:      map[string]any{},
	}
	if event.Data != nil && event.Data.Object != nil {
		normalised.Raw = event.Data.Object
	}

	object := normalised.Raw
	switch event.Type {
	case "payment_intent.succeeded":
		normalised.Type = EventPaymentSucceeded
		normalised.IntentID = stringField(object, "id")
	case "payment_intent.payment_failed", "payment_intent.canceled":
		normalised.Type = EventPaymentFailed
		normalised.IntentID = stringField(object, "id")
	case "checkout.session.completed":
		normalised.Type = EventPaymentSucceeded
		normalised.IntentID = stringField(object, "payment_intent")
	case "checkout.session.expired":
		normalised.Type = EventPaymentFailed
		normalised.IntentID = stringField(object, "payment_intent")
	case "charge.refunded":
		normalised.Type = EventPaymentRefunded
		normalised.IntentID = stringField(object, "payment_intent")
	}
	return normalised
}

func stringField(object map[string]any, key string) string {
	if object == nil {
		return ""
	}
	if value, ok := object[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
