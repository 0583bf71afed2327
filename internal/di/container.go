package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tarodan/api/internal/notify"
	"github.com/tarodan/api/internal/payments"
	"github.com/tarodan/api/internal/platform/config"
	"github.com/tarodan/api/internal/platform/storage"
	"github.com/tarodan/api/internal/repositories"
	"github.com/tarodan/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Trades        services.TradeService
	Orders        services.OrderService
	Payments      services.PaymentService
	Ratings       services.RatingService
	Notifications services.NotificationService
	System        services.SystemService
	Audit         services.AuditLogService
}

// Infrastructure carries collaborators that are constructed in main rather
// than derived from the repository registry: the payment gateway, the invoice
// store, event publishers, outbound senders, and the listing cache.
type Infrastructure struct {
	Gateway      *payments.Manager
	Invoices     *storage.InvoiceStore
	TradeEvents  services.TradeEventPublisher
	OrderEvents  services.OrderEventPublisher
	DeliveryJobs services.DeliveryJobPublisher
	Senders      []notify.Sender
	ProductCache services.ProductCache
	Logger       *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring supplies real
// implementations, while tests can provide in-memory registries and stub infrastructure.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      time.Now,
		Logger:     auditLogger(infra.Logger),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = auditSvc

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Deliveries:    reg.Deliveries(),
		Users:         reg.Users(),
		Senders:       infra.Senders,
		Queue:         infra.DeliveryJobs,
		Clock:         time.Now,
		Logger:        serviceLogger(infra.Logger, "notifications"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	tradeSvc, err := services.NewTradeService(services.TradeServiceDeps{
		Trades:     reg.Trades(),
		Disputes:   reg.Disputes(),
		Shipments:  reg.Shipments(),
		Products:   reg.Products(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     infra.TradeEvents,
		Notifier:   notificationSvc,
		Audit:      auditSvc,
		Logger:     serviceLogger(infra.Logger, "trades"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build trade service: %w", err)
	}
	svc.Trades = tradeSvc

	orderDeps := services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Shipments:  reg.Shipments(),
		Products:   reg.Products(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     infra.OrderEvents,
		Notifier:   notificationSvc,
		Logger:     serviceLogger(infra.Logger, "orders"),
	}
	// Typed nils must not leak into the interface fields.
	if infra.Gateway != nil {
		orderDeps.Gateway = infra.Gateway
	}
	if infra.Invoices != nil {
		orderDeps.Invoices = infra.Invoices
	}
	orderSvc, err := services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Products:   reg.Products(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     infra.OrderEvents,
		Notifier:   notificationSvc,
		Logger:     serviceLogger(infra.Logger, "payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	ratingSvc, err := services.NewRatingService(services.RatingServiceDeps{
		Ratings:  reg.Ratings(),
		Orders:   reg.Orders(),
		Trades:   reg.Trades(),
		Clock:    time.Now,
		Cache:    infra.ProductCache,
		Notifier: notificationSvc,
		Logger:   serviceLogger(infra.Logger, "ratings"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rating service: %w", err)
	}
	svc.Ratings = ratingSvc

	return svc, nil
}

func serviceLogger(parent *zap.Logger, name string) func(context.Context, string, map[string]any) {
	if parent == nil {
		return nil
	}
	scoped := parent.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		scoped.Debug(event, zFields...)
	}
}

func auditLogger(parent *zap.Logger) services.AuditLogger {
	if parent == nil {
		return nil
	}
	return parent.Named("audit").Sugar()
}
