package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/tarodan/api/internal/platform/firestore"
	"github.com/tarodan/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider

	trades        *TradeRepository
	disputes      *DisputeRepository
	shipments     *ShipmentRepository
	orders        *OrderRepository
	payments      *PaymentRepository
	ratings       *RatingRepository
	notifications *NotificationRepository
	deliveries    *DeliveryRepository
	products      *ProductRepository
	users         *UserRepository
	auditLogs     *AuditLogRepository
	counters      *CounterRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises registry construction.
type RegistryOption func(*Registry)

// WithHealthRepository injects the dependency probe set used for readiness checks.
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		if health != nil {
			r.health = health
		}
	}
}

// NewRegistry constructs every Firestore-backed repository over a shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	registry := &Registry{provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}

	var err error
	if registry.trades, err = NewTradeRepository(provider); err != nil {
		return nil, err
	}
	if registry.disputes, err = NewDisputeRepository(provider); err != nil {
		return nil, err
	}
	if registry.shipments, err = NewShipmentRepository(provider); err != nil {
		return nil, err
	}
	if registry.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if registry.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, err
	}
	if registry.ratings, err = NewRatingRepository(provider); err != nil {
		return nil, err
	}
	if registry.notifications, err = NewNotificationRepository(provider); err != nil {
		return nil, err
	}
	if registry.deliveries, err = NewDeliveryRepository(provider); err != nil {
		return nil, err
	}
	if registry.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if registry.users, err = NewUserRepository(provider); err != nil {
		return nil, err
	}
	if registry.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, err
	}
	if registry.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}

	if registry.health == nil {
		health, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
			{
				Name: "firestore",
				Check: func(ctx context.Context) error {
					_, err := provider.Client(ctx)
					return err
				},
			},
		})
		if err != nil {
			return nil, err
		}
		registry.health = health
	}

	return registry, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn inside a Firestore transaction. The transaction is
// carried on the callback context, so repository reads and writes issued
// through it are serialised and commit or abort together. Firestore requires
// all transactional reads to happen before the first buffered write.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is nil")
	}
	if r == nil || r.provider == nil {
		return errors.New("registry: firestore provider is required")
	}
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		return fn(txCtx)
	})
}

func (r *Registry) Trades() repositories.TradeRepository               { return r.trades }
func (r *Registry) Disputes() repositories.DisputeRepository           { return r.disputes }
func (r *Registry) Shipments() repositories.ShipmentRepository         { return r.shipments }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Ratings() repositories.RatingRepository             { return r.ratings }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Deliveries() repositories.DeliveryRepository        { return r.deliveries }
func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) AuditLogs() repositories.AuditLogRepository         { return r.auditLogs }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }
