package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_test"

// signStripePayload builds a Stripe-Signature header the way Stripe's SDK
// expects: HMAC-SHA256 over "<timestamp>.<payload>".
func signStripePayload(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhookVerifierMapsIntentSucceeded(t *testing.T) {
	verifier, err := NewStripeWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	payload := []byte(`{"id":"evt_0001","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123","amount":12500}}}`)
	header := signStripePayload(t, payload, testWebhookSecret, time.Now())

	event, err := verifier.Verify(payload, header)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if event.Provider != "stripe" || event.EventID != "evt_0001" {
		t.Fatalf("unexpected event metadata: %+v", event)
	}
	if event.Type != EventPaymentSucceeded {
		t.Fatalf("expected %s, got %s", EventPaymentSucceeded, event.Type)
	}
	if event.IntentID != "pi_123" {
		t.Fatalf("expected intent pi_123, got %q", event.IntentID)
	}
	if event.Raw["amount"] != float64(12500) {
		t.Fatalf("expected raw payload to carry amount, got %v", event.Raw["amount"])
	}
}

func TestStripeWebhookVerifierMapsSessionAndRefundEvents(t *testing.T) {
	verifier, err := NewStripeWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	cases := []struct {
		name       string
		payload    string
		wantType   string
		wantIntent string
	}{
		{
			name:       "checkout session completed",
			payload:    `{"id":"evt_0002","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_intent":"pi_456"}}}`,
			wantType:   EventPaymentSucceeded,
			wantIntent: "pi_456",
		},
		{
			name:       "intent failed",
			payload:    `{"id":"evt_0003","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_789"}}}`,
			wantType:   EventPaymentFailed,
			wantIntent: "pi_789",
		},
		{
			name:       "charge refunded",
			payload:    `{"id":"evt_0004","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_999"}}}`,
			wantType:   EventPaymentRefunded,
			wantIntent: "pi_999",
		},
		{
			name:       "unmapped event",
			payload:    `{"id":"evt_0005","type":"customer.created","data":{"object":{"id":"cus_1"}}}`,
			wantType:   "",
			wantIntent: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := []byte(tc.payload)
			header := signStripePayload(t, payload, testWebhookSecret, time.Now())

			event, err := verifier.Verify(payload, header)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if event.Type != tc.wantType {
				t.Fatalf("expected type %q, got %q", tc.wantType, event.Type)
			}
			if event.IntentID != tc.wantIntent {
				t.Fatalf("expected intent %q, got %q", tc.wantIntent, event.IntentID)
			}
		})
	}
}

func TestStripeWebhookVerifierToleratesAPIVersionDrift(t *testing.T) {
	verifier, err := NewStripeWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	payload := []byte(`{"id":"evt_0007","api_version":"2019-02-19","type":"payment_intent.succeeded","data":{"object":{"id":"pi_drift"}}}`)
	header := signStripePayload(t, payload, testWebhookSecret, time.Now())

	event, err := verifier.Verify(payload, header)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if event.IntentID != "pi_drift" {
		t.Fatalf("expected intent pi_drift, got %q", event.IntentID)
	}
}

func TestStripeWebhookVerifierRejectsBadSignature(t *testing.T) {
	verifier, err := NewStripeWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	payload := []byte(`{"id":"evt_0006","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	header := signStripePayload(t, payload, "whsec_other", time.Now())

	if _, err := verifier.Verify(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestNewStripeWebhookVerifierRequiresSecret(t *testing.T) {
	if _, err := NewStripeWebhookVerifier("  "); err == nil {
		t.Fatal("expected error for blank secret")
	}
}
