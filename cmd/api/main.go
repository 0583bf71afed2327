package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tarodan/api/internal/di"
	"github.com/tarodan/api/internal/handlers"
	"github.com/tarodan/api/internal/notify"
	"github.com/tarodan/api/internal/payments"
	"github.com/tarodan/api/internal/platform/auth"
	"github.com/tarodan/api/internal/platform/cache"
	"github.com/tarodan/api/internal/platform/config"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
	"github.com/tarodan/api/internal/platform/idempotency"
	"github.com/tarodan/api/internal/platform/jobs"
	"github.com/tarodan/api/internal/platform/observability"
	"github.com/tarodan/api/internal/platform/secrets"
	platformstorage "github.com/tarodan/api/internal/platform/storage"
	"github.com/tarodan/api/internal/repositories"
	firestoreRepo "github.com/tarodan/api/internal/repositories/firestore"
	"github.com/tarodan/api/internal/services"

	"github.com/go-chi/chi/v5"
)

const autoConfirmSweepBatch = 100

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	// The service account key doubles as the V4 signing key for invoice URLs.
	credentialsFile := strings.TrimSpace(cfg.Firebase.CredentialsFile)
	if credentialsFile == "" {
		logger.Fatal("firebase credentials file is required for invoice URL signing")
	}
	signer, err := platformstorage.NewServiceAccountSignerFromFile(credentialsFile)
	if err != nil {
		logger.Fatal("failed to load storage signer key", zap.Error(err))
	}
	signedURLClient, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Fatal("failed to initialise signed url client", zap.Error(err))
	}
	invoiceStore, err := platformstorage.NewInvoiceStore(storageClient, signedURLClient, cfg.Storage.InvoicesBucket)
	if err != nil {
		logger.Fatal("failed to initialise invoice store", zap.Error(err))
	}

	var redisClient *redis.Client
	var productCache services.ProductCache
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		redisClient, err = cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to initialise redis client", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		invalidator, err := cache.NewProductCacheInvalidator(redisClient)
		if err != nil {
			logger.Fatal("failed to initialise product cache invalidator", zap.Error(err))
		}
		productCache = invalidator
	} else {
		logger.Warn("redis url not configured; listing cache invalidation disabled")
	}

	infra := di.Infrastructure{
		Invoices:     invoiceStore,
		ProductCache: productCache,
		Logger:       logger,
	}

	var pubsubClient *pubsub.Client
	if strings.TrimSpace(cfg.PubSub.ProjectID) != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		tradeEvents, err := jobs.NewPubSubTradeEventPublisher(pubsubClient.Topic(cfg.PubSub.TradeEventsTopic))
		if err != nil {
			logger.Fatal("failed to initialise trade event publisher", zap.Error(err))
		}
		orderEvents, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.PubSub.OrderEventsTopic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		deliveryJobs, err := jobs.NewPubSubDeliveryJobPublisher(pubsubClient.Topic(cfg.PubSub.DeliveryJobsTopic))
		if err != nil {
			logger.Fatal("failed to initialise delivery job publisher", zap.Error(err))
		}
		infra.TradeEvents = tradeEvents
		infra.OrderEvents = orderEvents
		infra.DeliveryJobs = deliveryJobs
	} else {
		logger.Warn("pubsub project not configured; event publishing disabled")
	}

	paymentsLogger := logger.Named("payments")
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			paymentsLogger.Debug(event, zFields...)
		},
		Clock: time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}
	infra.Gateway = paymentManager

	webhookVerifier, err := payments.NewStripeWebhookVerifier(cfg.PSP.StripeWebhookSecret)
	if err != nil {
		logger.Fatal("failed to initialise stripe webhook verifier", zap.Error(err))
	}

	infra.Senders = buildSenders(logger, cfg.Notifications)

	healthRepo, err := newHealthRepository(cfg, firestoreClient, fetcher, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, firestoreRepo.WithHealthRepository(healthRepo))
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to assemble service container", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup

	if cfg.Idempotency.CleanupInterval > 0 {
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			runIdempotencyCleanup(backgroundCtx, logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)
		}()
	}

	backgroundWG.Add(1)
	go func() {
		defer backgroundWG.Done()
		runAutoConfirmSweep(backgroundCtx, logger.Named("sweep"), container.Services, cfg.Trading)
	}()

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	tradeHandlers := handlers.NewTradeHandlers(authenticator, container.Services.Trades)
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, container.Services.Payments)
	ratingHandlers := handlers.NewRatingHandlers(authenticator, container.Services.Ratings)
	notificationHandlers := handlers.NewNotificationHandlers(authenticator, container.Services.Notifications)
	adminHandlers := handlers.NewAdminHandlers(authenticator, container.Services.Trades, container.Services.Audit, container.Services.Notifications)
	webhookHandlers := handlers.NewWebhookHandlers(webhookVerifier, container.Services.Payments)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithTradeRoutes(tradeHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithRatingRoutes(ratingHandlers.Routes),
		handlers.WithNotificationRoutes(notificationHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithInternalRoutes(internalRoutes(logger.Named("sweep"), container.Services, cfg.Trading)),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}
	if hmacMiddleware := buildWebhookHMACMiddleware(logger.Named("auth"), cfg); hmacMiddleware != nil {
		opts = append(opts, handlers.WithWebhookMiddlewares(hmacMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tarodan api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := container.Close(closeCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func buildSenders(logger *zap.Logger, cfg config.NotificationConfig) []notify.Sender {
	senders := make([]notify.Sender, 0, 3)
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		senders = append(senders, notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}))
	} else {
		logger.Warn("smtp host not configured; email delivery disabled")
	}
	senders = append(senders, notify.NewExpoSender(cfg.ExpoEndpoint))
	if strings.TrimSpace(cfg.SMS.Endpoint) != "" {
		senders = append(senders, notify.NewHTTPSMSSender(notify.SMSConfig{
			Endpoint: cfg.SMS.Endpoint,
			APIKey:   cfg.SMS.APIKey,
			Sender:   cfg.SMS.Sender,
		}))
	}
	return senders
}

func newHealthRepository(cfg config.Config, client *firestore.Client, fetcher *secrets.Fetcher, redisClient *redis.Client) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	// Secret Manager is not reachable in local development, where the fetcher
	// falls back to a file.
	if fetcher != nil && !strings.EqualFold(cfg.Security.Environment, "local") {
		const secretHealthReference = "secret://tarodan-healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if redisClient != nil {
		r := redisClient
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return r.Ping(ctx).Err()
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// runAutoConfirmSweep periodically completes shipped trades and delivered
// orders whose confirmation window has lapsed.
func runAutoConfirmSweep(ctx context.Context, logger *zap.Logger, svc di.Services, cfg config.TradingConfig) {
	ticker := time.NewTicker(cfg.AutoConfirmSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			cutoff := time.Now().UTC().Add(-cfg.AutoConfirmWindow)
			trades, err := svc.Trades.AutoConfirmTrades(runCtx, cutoff, autoConfirmSweepBatch)
			if err != nil {
				logger.Error("trade auto-confirm sweep failed", zap.Error(err))
			}
			orders, err := svc.Orders.AutoConfirmOrders(runCtx, cutoff, autoConfirmSweepBatch)
			if err != nil {
				logger.Error("order auto-confirm sweep failed", zap.Error(err))
			}
			cancel()
			if trades > 0 || orders > 0 {
				logger.Info("auto-confirm sweep completed",
					zap.Int("trades", trades),
					zap.Int("orders", orders),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// internalRoutes exposes the operational sweep trigger on the OIDC-guarded
// internal group so a scheduler can force a pass between ticks.
func internalRoutes(logger *zap.Logger, svc di.Services, cfg config.TradingConfig) handlers.RouteRegistrar {
	return func(r chi.Router) {
		r.Post("/sweeps/auto-confirm", func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			cutoff := time.Now().UTC().Add(-cfg.AutoConfirmWindow)
			trades, err := svc.Trades.AutoConfirmTrades(ctx, cutoff, autoConfirmSweepBatch)
			if err != nil {
				logger.Error("trade auto-confirm sweep failed", zap.Error(err))
				http.Error(w, "sweep failed", http.StatusInternalServerError)
				return
			}
			orders, err := svc.Orders.AutoConfirmOrders(ctx, cutoff, autoConfirmSweepBatch)
			if err != nil {
				logger.Error("order auto-confirm sweep failed", zap.Error(err))
				http.Error(w, "sweep failed", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]int{
				"trades_confirmed": trades,
				"orders_confirmed": orders,
			})
		})
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	jwksCache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(jwksCache, auth.WithOIDCLogger(adapter))

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

// buildWebhookHMACMiddleware guards partner webhook callbacks with shared-secret
// signatures. Stripe is exempt: its handler verifies the Stripe-Signature
// header itself.
func buildWebhookHMACMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	hmacSecrets := make(map[string]string)
	for key, value := range cfg.Security.HMAC.Secrets {
		if strings.TrimSpace(value) == "" {
			continue
		}
		hmacSecrets[strings.ToLower(key)] = value
	}
	if len(hmacSecrets) == 0 {
		return nil
	}

	provider := staticSecretProvider{secrets: hmacSecrets}
	nonces := auth.NewInMemoryNonceStore()
	adapter := observability.NewPrintfAdapter(logger)
	validator := auth.NewHMACValidator(provider, nonces,
		auth.WithHMACLogger(adapter),
		auth.WithHMACHeaders(cfg.Security.HMAC.SignatureHeader, cfg.Security.HMAC.TimestampHeader, cfg.Security.HMAC.NonceHeader),
		auth.WithHMACClockSkew(cfg.Security.HMAC.ClockSkew),
		auth.WithHMACNonceTTL(cfg.Security.HMAC.NonceTTL),
	)

	guard := validator.RequireHMACResolver(webhookSecretResolver(hmacSecrets))
	return func(next http.Handler) http.Handler {
		guarded := guard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/payments/stripe") {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

type staticSecretProvider struct {
	secrets map[string]string
}

func (p staticSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	if len(p.secrets) == 0 {
		return "", errors.New("auth: hmac secrets not configured")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", errors.New("auth: secret name required")
	}
	if secret, ok := p.secrets[key]; ok && secret != "" {
		return secret, nil
	}
	return "", errors.New("auth: secret not found")
}

func webhookSecretResolver(hmacSecrets map[string]string) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		path := r.URL.Path
		if idx := strings.Index(path, "/webhooks/"); idx >= 0 {
			path = path[idx+len("/webhooks/"):]
		}
		path = strings.Trim(path, "/")
		if path == "" {
			if secret, ok := hmacSecrets["default"]; ok && secret != "" {
				return "default", true
			}
			return "", false
		}

		segments := strings.Split(path, "/")
		candidates := make([]string, 0, 3)
		if len(segments) >= 2 {
			candidates = append(candidates, strings.ToLower(strings.Join(segments[:2], "/")))
		}
		candidates = append(candidates, strings.ToLower(segments[0]), "default")

		for _, candidate := range candidates {
			if secret, ok := hmacSecrets[candidate]; ok && secret != "" {
				return candidate, true
			}
		}
		return "", false
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("TARODAN_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("TARODAN_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("TARODAN_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("TARODAN_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("TARODAN_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := parseKeyValueList(lookup("TARODAN_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	required := []string{
		"PSP.StripeAPIKey",
		"PSP.StripeWebhookSecret",
	}

	if env != nil {
		if strings.TrimSpace(env["TARODAN_SMTP_PASSWORD"]) != "" {
			required = append(required, "Notifications.SMTP.Password")
		}
		if strings.TrimSpace(env["TARODAN_SMS_API_KEY"]) != "" {
			required = append(required, "Notifications.SMS.APIKey")
		}
		for _, key := range parseHMACSecretKeys(strings.TrimSpace(env["TARODAN_SECURITY_HMAC_SECRETS"])) {
			required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", key))
		}
	}

	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["TARODAN_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func parseHMACSecretKeys(raw string) []string {
	values := parseKeyValueList(raw)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, strings.ToLower(key))
	}
	sort.Strings(keys)
	return keys
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
