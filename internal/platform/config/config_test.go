package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"TARODAN_FIREBASE_PROJECT_ID":     "tarodan-dev",
		"TARODAN_STORAGE_INVOICES_BUCKET": "tarodan-invoices-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "tarodan-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "tarodan-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.TradeEventsTopic != defaultTradeEventsTopic {
		t.Errorf("unexpected trade events topic: %s", cfg.PubSub.TradeEventsTopic)
	}
	if cfg.PubSub.DeliveryJobsTopic != defaultDeliveryJobsTopic {
		t.Errorf("unexpected delivery jobs topic: %s", cfg.PubSub.DeliveryJobsTopic)
	}
	if cfg.Trading.AutoConfirmWindow != defaultAutoConfirmWindow {
		t.Errorf("unexpected auto-confirm window: %s", cfg.Trading.AutoConfirmWindow)
	}
	if cfg.Trading.AutoConfirmSweepInterval != defaultAutoConfirmSweep {
		t.Errorf("unexpected sweep interval: %s", cfg.Trading.AutoConfirmSweepInterval)
	}
	if cfg.Notifications.SMTP.Port != defaultSMTPPort {
		t.Errorf("unexpected smtp port: %d", cfg.Notifications.SMTP.Port)
	}
	if cfg.Notifications.SMS.Sender != defaultSMSSenderName {
		t.Errorf("unexpected sms sender: %s", cfg.Notifications.SMS.Sender)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url %s, got %s", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Security.HMAC.SignatureHeader != defaultHMACSignatureHeader {
		t.Errorf("expected default signature header, got %s", cfg.Security.HMAC.SignatureHeader)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"TARODAN_SERVER_PORT":                         "9090",
		"TARODAN_SERVER_READ_TIMEOUT":                 "20s",
		"TARODAN_SERVER_WRITE_TIMEOUT":                "25s",
		"TARODAN_SERVER_IDLE_TIMEOUT":                 "2m",
		"TARODAN_FIREBASE_PROJECT_ID":                 "tarodan-prod",
		"TARODAN_FIRESTORE_PROJECT_ID":                "tarodan-fire",
		"TARODAN_STORAGE_INVOICES_BUCKET":             "invoices-prod",
		"TARODAN_REDIS_URL":                           "redis://cache.internal:6379/0",
		"TARODAN_PUBSUB_PROJECT_ID":                   "tarodan-events",
		"TARODAN_PUBSUB_TRADE_EVENTS_TOPIC":           "trade-events-prod",
		"TARODAN_PSP_STRIPE_API_KEY":                  "secret://stripe/api",
		"TARODAN_PSP_STRIPE_WEBHOOK_SECRET":           "secret://stripe/webhook",
		"TARODAN_SMTP_HOST":                           "mail.tarodan.io",
		"TARODAN_SMTP_PORT":                           "2525",
		"TARODAN_SMTP_PASSWORD":                       "secret://smtp/password",
		"TARODAN_SMS_ENDPOINT":                        "https://sms.example.com/send",
		"TARODAN_SMS_API_KEY":                         "secret://sms/key",
		"TARODAN_TRADING_AUTO_CONFIRM_WINDOW":         "72h",
		"TARODAN_TRADING_AUTO_CONFIRM_SWEEP_INTERVAL": "15m",
		"TARODAN_RATELIMIT_DEFAULT_PER_MIN":           "150",
		"TARODAN_RATELIMIT_AUTH_PER_MIN":              "300",
		"TARODAN_RATELIMIT_WEBHOOK_BURST":             "80",
		"TARODAN_SECURITY_ENVIRONMENT":                "prod",
		"TARODAN_SECURITY_OIDC_AUDIENCE":              "https://service.example.com",
		"TARODAN_SECURITY_OIDC_ISSUERS":               "https://accounts.google.com, https://cloud.google.com/iap",
		"TARODAN_SECURITY_OIDC_JWKS_URL":              "https://example.com/jwks.json",
		"TARODAN_SECURITY_HMAC_SECRETS":               "payments/stripe=secret://hmac/stripe,shipping=shipping-secret",
		"TARODAN_SECURITY_HMAC_HEADER_SIGNATURE":      "X-Custom-Signature",
		"TARODAN_SECURITY_HMAC_CLOCK_SKEW":            "3m",
		"TARODAN_SECURITY_HMAC_NONCE_TTL":             "10m",
		"TARODAN_IDEMPOTENCY_HEADER":                  "X-Idem-Key",
		"TARODAN_IDEMPOTENCY_TTL":                     "48h",
		"TARODAN_IDEMPOTENCY_CLEANUP_INTERVAL":        "30m",
		"TARODAN_IDEMPOTENCY_CLEANUP_BATCH":           "500",
	}

	secrets := map[string]string{
		"secret://stripe/api":     "stripe-key",
		"secret://stripe/webhook": "stripe-webhook",
		"secret://smtp/password":  "smtp-pass",
		"secret://sms/key":        "sms-key",
		"secret://hmac/stripe":    "stripe-hmac",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.PSP.StripeWebhookSecret != "stripe-webhook" {
		t.Errorf("expected resolved webhook secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
	if cfg.Redis.URL != "redis://cache.internal:6379/0" {
		t.Errorf("unexpected redis url %s", cfg.Redis.URL)
	}
	if cfg.PubSub.ProjectID != "tarodan-events" {
		t.Errorf("unexpected pubsub project %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.TradeEventsTopic != "trade-events-prod" {
		t.Errorf("unexpected trade events topic %s", cfg.PubSub.TradeEventsTopic)
	}
	if cfg.PubSub.OrderEventsTopic != defaultOrderEventsTopic {
		t.Errorf("unexpected order events topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Notifications.SMTP.Host != "mail.tarodan.io" || cfg.Notifications.SMTP.Port != 2525 {
		t.Errorf("unexpected smtp settings %+v", cfg.Notifications.SMTP)
	}
	if cfg.Notifications.SMTP.Password != "smtp-pass" {
		t.Errorf("expected resolved smtp password, got %s", cfg.Notifications.SMTP.Password)
	}
	if cfg.Notifications.SMS.APIKey != "sms-key" {
		t.Errorf("expected resolved sms key, got %s", cfg.Notifications.SMS.APIKey)
	}
	if cfg.Trading.AutoConfirmWindow != 72*time.Hour {
		t.Errorf("unexpected auto-confirm window %s", cfg.Trading.AutoConfirmWindow)
	}
	if cfg.Trading.AutoConfirmSweepInterval != 15*time.Minute {
		t.Errorf("unexpected sweep interval %s", cfg.Trading.AutoConfirmSweepInterval)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.Audience != "https://service.example.com" {
		t.Errorf("unexpected oidc audience %s", cfg.Security.OIDC.Audience)
	}
	if cfg.Security.OIDC.JWKSURL != "https://example.com/jwks.json" {
		t.Errorf("unexpected jwks url %s", cfg.Security.OIDC.JWKSURL)
	}
	if cfg.Security.HMAC.Secrets["payments/stripe"] != "stripe-hmac" {
		t.Errorf("expected resolved stripe hmac secret, got %s", cfg.Security.HMAC.Secrets["payments/stripe"])
	}
	if cfg.Security.HMAC.Secrets["shipping"] != "shipping-secret" {
		t.Errorf("expected shipping secret fallback, got %s", cfg.Security.HMAC.Secrets["shipping"])
	}
	if cfg.Security.HMAC.SignatureHeader != "X-Custom-Signature" {
		t.Errorf("unexpected signature header %s", cfg.Security.HMAC.SignatureHeader)
	}
	if cfg.Security.HMAC.ClockSkew != 3*time.Minute {
		t.Errorf("unexpected clock skew %s", cfg.Security.HMAC.ClockSkew)
	}
	if cfg.Security.HMAC.NonceTTL != 10*time.Minute {
		t.Errorf("unexpected nonce ttl %s", cfg.Security.HMAC.NonceTTL)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "TARODAN_SERVER_PORT=7070\nTARODAN_FIREBASE_PROJECT_ID=tarodan-dot\nTARODAN_STORAGE_INVOICES_BUCKET=invoices-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "tarodan-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"TARODAN_FIREBASE_PROJECT_ID":     "tarodan-dev",
		"TARODAN_STORAGE_INVOICES_BUCKET": "invoices",
		"TARODAN_PSP_STRIPE_API_KEY":      "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "TARODAN_FIREBASE_PROJECT_ID=dot-project\nTARODAN_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("TARODAN_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("TARODAN_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"TARODAN_FIREBASE_PROJECT_ID": "override-project",
		"TARODAN_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["TARODAN_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["TARODAN_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["TARODAN_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["TARODAN_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"TARODAN_FIREBASE_PROJECT_ID":     "tarodan-dev",
		"TARODAN_STORAGE_INVOICES_BUCKET": "invoices",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeWebhookSecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeWebhookSecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"TARODAN_FIREBASE_PROJECT_ID":     "tarodan-dev",
		"TARODAN_STORAGE_INVOICES_BUCKET": "invoices",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.StripeWebhookSecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeWebhookSecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"TARODAN_FIREBASE_PROJECT_ID":       "tarodan-dev",
		"TARODAN_STORAGE_INVOICES_BUCKET":   "invoices",
		"TARODAN_PSP_STRIPE_WEBHOOK_SECRET": "sm://stripe/webhook",
	}

	secrets := map[string]string{
		"secret://stripe/webhook": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PSP.StripeWebhookSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
}
