package services

import (
	"context"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Money                = domain.Money
	Trade                = domain.Trade
	TradeItem            = domain.TradeItem
	TradeStatus          = domain.TradeStatus
	TradeSide            = domain.TradeSide
	Dispute              = domain.Dispute
	DisputeResolution    = domain.DisputeResolution
	Shipment             = domain.Shipment
	ShipmentStatus       = domain.ShipmentStatus
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	Payment              = domain.Payment
	PaymentStatus        = domain.PaymentStatus
	Rating               = domain.Rating
	RatingKind           = domain.RatingKind
	RatingSummary        = domain.RatingSummary
	Notification         = domain.Notification
	NotificationChannel  = domain.NotificationChannel
	NotificationDelivery = domain.NotificationDelivery
	Product              = domain.Product
	UserProfile          = domain.UserProfile
	AuditLogEntry        = domain.AuditLogEntry
	SystemHealthReport   = domain.SystemHealthReport
)

// TradeService orchestrates the trade lifecycle: proposal, response, shipping,
// confirmation, and dispute escalation/resolution.
type TradeService interface {
	CreateTrade(ctx context.Context, cmd CreateTradeCommand) (Trade, error)
	GetTrade(ctx context.Context, cmd GetTradeCommand) (TradeDetail, error)
	ListTrades(ctx context.Context, cmd ListTradesCommand) (domain.CursorPage[Trade], error)
	AcceptTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error)
	RejectTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error)
	CounterTrade(ctx context.Context, cmd CounterTradeCommand) (Trade, error)
	CancelTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error)
	ShipTrade(ctx context.Context, cmd ShipTradeCommand) (Trade, error)
	ConfirmTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error)
	RaiseDispute(ctx context.Context, cmd RaiseDisputeCommand) (Dispute, error)
	ResolveDispute(ctx context.Context, cmd ResolveDisputeCommand) (TradeDetail, error)
	AutoConfirmTrades(ctx context.Context, before time.Time, limit int) (int, error)
}

// OrderService encapsulates the purchase flow from creation through payment,
// shipping, delivery confirmation, and cancellation/refund.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error)
	StartPayment(ctx context.Context, cmd StartPaymentCommand) (PaymentSession, error)
	ShipOrder(ctx context.Context, cmd ShipOrderCommand) (Order, error)
	ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	InvoiceURL(ctx context.Context, cmd InvoiceURLCommand) (string, error)
	AutoConfirmOrders(ctx context.Context, before time.Time, limit int) (int, error)
}

// PaymentService ingests idempotent gateway webhook events and reconciles
// payment state onto orders.
type PaymentService interface {
	HandleGatewayEvent(ctx context.Context, cmd GatewayEventCommand) error
	ListPayments(ctx context.Context, orderID string) ([]Payment, error)
}

// RatingService enforces the one-shot rating gate after successful orders and trades.
type RatingService interface {
	CreateUserRating(ctx context.Context, cmd CreateUserRatingCommand) (Rating, error)
	CreateProductRating(ctx context.Context, cmd CreateProductRatingCommand) (Rating, error)
	ListUserRatings(ctx context.Context, cmd ListRatingsCommand) (RatingPage, error)
	ListProductRatings(ctx context.Context, cmd ListRatingsCommand) (RatingPage, error)
}

// NotificationService dispatches templated notifications across channels and
// serves the in-app inbox.
type NotificationService interface {
	Send(ctx context.Context, cmd SendNotificationCommand) (DispatchResult, error)
	ListNotifications(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error)
	ListDeliveries(ctx context.Context, filter DeliveryFilter) (domain.CursorPage[NotificationDelivery], error)
}

// NotificationSender is the narrow dispatch surface other services depend on
// for best-effort fan-out.
type NotificationSender interface {
	Send(ctx context.Context, cmd SendNotificationCommand) (DispatchResult, error)
}

// SystemService aggregates utility endpoints (health checks, build info).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// ProductCache invalidates cached listing/detail pages when aggregates change.
type ProductCache interface {
	InvalidateSeller(ctx context.Context, sellerID string) error
	InvalidateProduct(ctx context.Context, productID string) error
}

// TradeEventPublisher pushes trade lifecycle events to downstream consumers.
// Publish failures are logged by callers and never abort the primary write.
type TradeEventPublisher interface {
	PublishTradeEvent(ctx context.Context, event TradeEvent) error
}

// OrderEventPublisher pushes order lifecycle events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// DeliveryJobPublisher mirrors outbound delivery attempts onto a queue so
// external workers can observe the stream. Publishing is best-effort.
type DeliveryJobPublisher interface {
	PublishDeliveryJob(ctx context.Context, delivery NotificationDelivery) error
}

// Command and DTO definitions ------------------------------------------------

// TradeEvent describes a lifecycle change emitted after a successful mutation.
type TradeEvent struct {
	Type       string
	TradeID    string
	ActorID    string
	Status     TradeStatus
	OccurredAt time.Time
	Metadata   map[string]string
}

// OrderEvent describes an order lifecycle change.
type OrderEvent struct {
	Type       string
	OrderID    string
	ActorID    string
	Status     OrderStatus
	OccurredAt time.Time
	Metadata   map[string]string
}

// TradeDetail bundles a trade with its shipments and dispute for detail reads.
type TradeDetail struct {
	Trade     Trade
	Shipments []Shipment
	Dispute   *Dispute
}

type CreateTradeCommand struct {
	InitiatorID       string
	ReceiverID        string
	InitiatorProducts []string
	ReceiverProducts  []string
	CashAdjustment    *Money
	Message           string
}

type GetTradeCommand struct {
	TradeID string
	UserID  string
	// AsAdmin allows staff to read trades they are not a party to.
	AsAdmin bool
}

type ListTradesCommand struct {
	UserID     string
	Status     []string
	Pagination Pagination
}

type RespondTradeCommand struct {
	TradeID string
	UserID  string
}

type CounterTradeCommand struct {
	TradeID           string
	UserID            string
	InitiatorProducts []string
	ReceiverProducts  []string
	CashAdjustment    *Money
	Message           string
}

type ShipTradeCommand struct {
	TradeID        string
	UserID         string
	Carrier        string
	TrackingNumber string
}

type RaiseDisputeCommand struct {
	TradeID     string
	UserID      string
	Reason      string
	Description string
}

type ResolveDisputeCommand struct {
	TradeID    string
	AdminID    string
	Resolution DisputeResolution
	AdminNote  string
	RequestID  string
}

type CreateOrderCommand struct {
	BuyerID   string
	ProductID string
}

type GetOrderCommand struct {
	OrderID string
	UserID  string
	AsAdmin bool
}

type ListOrdersCommand struct {
	UserID string
	// Role selects whether to list purchases ("buyer") or sales ("seller").
	Role       string
	Status     []string
	Pagination Pagination
}

// PaymentSession is returned to the client to complete payment with the gateway.
type PaymentSession struct {
	PaymentID   string
	Provider    string
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
}

type StartPaymentCommand struct {
	OrderID        string
	BuyerID        string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type ShipOrderCommand struct {
	OrderID        string
	SellerID       string
	Carrier        string
	TrackingNumber string
}

type ConfirmDeliveryCommand struct {
	OrderID string
	BuyerID string
}

type CancelOrderCommand struct {
	OrderID string
	UserID  string
	Reason  string
}

type InvoiceURLCommand struct {
	OrderID string
	UserID  string
}

// GatewayEventCommand is a normalised webhook event from the payment gateway.
type GatewayEventCommand struct {
	Provider string
	EventID  string
	Type     string
	IntentID string
	Raw      map[string]any
}

type CreateUserRatingCommand struct {
	GiverID    string
	ReceiverID string
	OrderID    string
	TradeID    string
	Score      int
	Comment    string
}

type CreateProductRatingCommand struct {
	GiverID   string
	ProductID string
	OrderID   string
	Score     int
	Comment   string
}

type ListRatingsCommand struct {
	// SubjectID is the rated user or product depending on the call.
	SubjectID  string
	Pagination Pagination
}

// RatingPage couples a page of ratings with the subject's aggregate.
type RatingPage struct {
	Page    domain.CursorPage[Rating]
	Summary RatingSummary
}

type SendNotificationCommand struct {
	UserID   string
	Type     string
	Channels []NotificationChannel
	Data     map[string]string
}

// DispatchResult reports per-channel outcomes of a single send.
type DispatchResult struct {
	NotificationID string
	Deliveries     []NotificationDelivery
}

type ListNotificationsCommand struct {
	UserID     string
	UnreadOnly bool
	Pagination Pagination
}

type MarkNotificationReadCommand struct {
	UserID         string
	NotificationID string
}

type DeliveryFilter struct {
	UserID     string
	Channel    string
	Status     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

// AuditLogRecord captures the inputs required to append an audit entry.
type AuditLogRecord struct {
	AdminID    string
	Action     string
	EntityType string
	EntityID   string
	OldValues  map[string]any
	NewValues  map[string]any
	RequestID  string
}

// AuditLogFilter scopes audit log reads for admin surfaces.
type AuditLogFilter struct {
	AdminID    string
	Action     string
	EntityType string
	EntityID   string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

func auditFilterToRepo(filter AuditLogFilter) repositories.AuditLogFilter {
	return repositories.AuditLogFilter{
		AdminID:    filter.AdminID,
		Action:     filter.Action,
		EntityType: filter.EntityType,
		EntityID:   filter.EntityID,
		DateRange:  filter.DateRange,
		Pagination: filter.Pagination,
	}
}
