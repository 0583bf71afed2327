package repositories

import (
	"context"
	"time"

	domain "github.com/tarodan/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Trades() TradeRepository
	Disputes() DisputeRepository
	Shipments() ShipmentRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Ratings() RatingRepository
	Notifications() NotificationRepository
	Deliveries() DeliveryRepository
	Products() ProductRepository
	Users() UserRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TradeRepository persists trade proposals and their lifecycle state.
type TradeRepository interface {
	Insert(ctx context.Context, trade domain.Trade) error
	Update(ctx context.Context, trade domain.Trade) error
	FindByID(ctx context.Context, tradeID string) (domain.Trade, error)
	List(ctx context.Context, filter TradeListFilter) (domain.CursorPage[domain.Trade], error)
	// ListAutoConfirmable returns shipped trades whose shipped timestamp is
	// older than the cutoff, for the auto-confirm sweep.
	ListAutoConfirmable(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error)
}

// DisputeRepository stores the zero-or-one escalation record per trade.
type DisputeRepository interface {
	Insert(ctx context.Context, dispute domain.Dispute) error
	Update(ctx context.Context, dispute domain.Dispute) error
	FindByTrade(ctx context.Context, tradeID string) (domain.Dispute, error)
}

// ShipmentRepository stores carrier handoffs for trade sides and orders.
type ShipmentRepository interface {
	Insert(ctx context.Context, shipment domain.Shipment) error
	Update(ctx context.Context, shipment domain.Shipment) error
	ListByTrade(ctx context.Context, tradeID string) ([]domain.Shipment, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Shipment, error)
}

// OrderRepository persists order headers and provides query helpers for buyers and sellers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListAutoConfirmable(ctx context.Context, before time.Time, limit int) ([]domain.Order, error)
}

// PaymentRepository stores gateway payment records underneath an order document.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, orderID string, paymentID string) (domain.Payment, error)
	FindByIntent(ctx context.Context, intentID string) (domain.Payment, error)
	List(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// RatingRepository stores one-shot ratings. Insert must fail with a conflict
// when a rating by the same giver already exists for the order or trade.
type RatingRepository interface {
	Insert(ctx context.Context, rating domain.Rating) (domain.Rating, error)
	FindByID(ctx context.Context, ratingID string) (domain.Rating, error)
	FindByGiverAndOrder(ctx context.Context, giverID string, orderID string, kind domain.RatingKind) (domain.Rating, error)
	FindByGiverAndTrade(ctx context.Context, giverID string, tradeID string) (domain.Rating, error)
	ListByReceiver(ctx context.Context, receiverID string, pager domain.Pagination) (domain.CursorPage[domain.Rating], error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Rating], error)
	SummarizeReceiver(ctx context.Context, receiverID string) (domain.RatingSummary, error)
	SummarizeProduct(ctx context.Context, productID string) (domain.RatingSummary, error)
}

// NotificationRepository stores in-app notification rows per user.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	FindByID(ctx context.Context, userID string, notificationID string) (domain.Notification, error)
	MarkRead(ctx context.Context, userID string, notificationID string, readAt time.Time) (domain.Notification, error)
	ListByUser(ctx context.Context, userID string, filter NotificationListFilter) (domain.CursorPage[domain.Notification], error)
}

// DeliveryRepository appends per-channel delivery log rows. The log is
// attempt-once and append-only; there is no update path.
type DeliveryRepository interface {
	Append(ctx context.Context, delivery domain.NotificationDelivery) error
	List(ctx context.Context, filter DeliveryListFilter) (domain.CursorPage[domain.NotificationDelivery], error)
}

// ProductRepository exposes the listing fields trade/order/rating flows need.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	UpdateStatus(ctx context.Context, productID string, status domain.ProductStatus, updatedAt time.Time) error
}

// UserRepository stores marketplace user profiles.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type TradeListFilter struct {
	// PartyID scopes results to trades where the user is initiator or receiver.
	PartyID    string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type OrderListFilter struct {
	BuyerID    string
	SellerID   string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type NotificationListFilter struct {
	UnreadOnly bool
	Types      []string
	Pagination domain.Pagination
}

type DeliveryListFilter struct {
	UserID     string
	Channel    string
	Status     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type AuditLogFilter struct {
	AdminID    string
	Action     string
	EntityType string
	EntityID   string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
