package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/payments"
	"github.com/tarodan/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix   = "ord_"
	paymentIDPrefix = "pay_"

	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnauthorized indicates the actor is neither buyer nor seller
	// of the order.
	ErrOrderUnauthorized = errors.New("order: unauthorized")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent modification or duplicate work.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPaymentFailed indicates the gateway session or refund call failed.
	ErrOrderPaymentFailed = errors.New("order: payment failed")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPendingPayment: {
		domain.OrderStatusPaid,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusPaid: {
		domain.OrderStatusShipped,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusShipped: {
		domain.OrderStatusDelivered,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusDelivered: {
		domain.OrderStatusCompleted,
		domain.OrderStatusRefunded,
	},
}

func canTransitionOrder(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

var orderCancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPendingPayment,
	domain.OrderStatusPaid,
}

// paymentGateway abstracts payments.Manager for easier testing.
type paymentGateway interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// invoiceStore renders and persists order invoices and serves signed links.
type invoiceStore interface {
	EnsureInvoice(ctx context.Context, order domain.Order) (string, error)
	SignedURL(ctx context.Context, objectPath string) (string, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Shipments   repositories.ShipmentRepository
	Products    repositories.ProductRepository
	Counters    repositories.CounterRepository
	Gateway     paymentGateway
	Invoices    invoiceStore
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Notifier    NotificationSender
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	shipments  repositories.ShipmentRepository
	products   repositories.ProductRepository
	counters   repositories.CounterRepository
	gateway    paymentGateway
	invoices   invoiceStore
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	notifier   NotificationSender
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		shipments:  deps.Shipments,
		products:   deps.Products,
		counters:   deps.Counters,
		gateway:    deps.Gateway,
		invoices:   deps.Invoices,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		notifier: deps.Notifier,
		logger:   logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" {
		return Order{}, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}
	if productID == "" {
		return Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if product.SellerID == buyerID {
		return Order{}, fmt.Errorf("%w: cannot buy your own listing", ErrOrderInvalidInput)
	}
	if product.Status != domain.ProductStatusActive {
		return Order{}, fmt.Errorf("%w: product %q is %s", ErrOrderConflict, productID, product.Status)
	}

	now := s.now()
	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:          orderIDPrefix + s.newID(),
		OrderNumber: number,
		BuyerID:     buyerID,
		SellerID:    product.SellerID,
		ProductID:   product.ID,
		Total:       product.Price,
		Status:      domain.OrderStatusPendingPayment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		// Reserving the listing keeps concurrent buyers out until payment
		// settles or the order is cancelled.
		if err := s.products.UpdateStatus(txCtx, product.ID, domain.ProductStatusReserved, now); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventCreated,
		OrderID:    order.ID,
		ActorID:    buyerID,
		Status:     order.Status,
		OccurredAt: now,
		Metadata:   map[string]string{"orderNumber": order.OrderNumber},
	})
	s.notify(ctx, order.SellerID, "order_created", map[string]string{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if err := s.authorizeOrderAccess(order, strings.TrimSpace(cmd.UserID), cmd.AsAdmin); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, cmd ListOrdersCommand) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	filter := repositories.OrderListFilter{
		Status:     cmd.Status,
		Pagination: cmd.Pagination,
	}
	switch strings.TrimSpace(cmd.Role) {
	case "", "buyer":
		filter.BuyerID = userID
	case "seller":
		filter.SellerID = userID
	default:
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown role %q", ErrOrderInvalidInput, cmd.Role)
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) StartPayment(ctx context.Context, cmd StartPaymentCommand) (PaymentSession, error) {
	if s.gateway == nil {
		return PaymentSession{}, fmt.Errorf("%w: payment gateway not configured", ErrOrderPaymentFailed)
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return PaymentSession{}, err
	}
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" || order.BuyerID != buyerID {
		return PaymentSession{}, fmt.Errorf("%w: only the buyer may pay for order %q", ErrOrderUnauthorized, order.ID)
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return PaymentSession{}, fmt.Errorf("%w: order %q is %s, payment requires pending_payment", ErrOrderInvalidState, order.ID, order.Status)
	}

	successURL := strings.TrimSpace(cmd.SuccessURL)
	cancelURL := strings.TrimSpace(cmd.CancelURL)
	if successURL == "" || cancelURL == "" {
		return PaymentSession{}, fmt.Errorf("%w: success and cancel URLs are required", ErrOrderInvalidInput)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.PaymentContext{
		Currency: order.Total.Currency,
	}, payments.CheckoutSessionRequest{
		Amount:         order.Total.Amount,
		Currency:       order.Total.Currency,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
		},
		Items: []payments.CheckoutLineItem{
			{
				Name:     order.OrderNumber,
				Quantity: 1,
				Amount:   order.Total.Amount,
				Currency: order.Total.Currency,
			},
		},
	})
	if err != nil {
		s.logger(ctx, "order.payment.session.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentSession{}, fmt.Errorf("%w: no gateway for currency %q", ErrOrderInvalidInput, order.Total.Currency)
		}
		return PaymentSession{}, ErrOrderPaymentFailed
	}

	now := s.now()
	payment := Payment{
		ID:        paymentIDPrefix + s.newID(),
		OrderID:   order.ID,
		Provider:  session.Provider,
		IntentID:  session.IntentID,
		SessionID: session.ID,
		Status:    domain.PaymentStatusPending,
		Amount:    order.Total,
		Raw:       maps.Clone(session.Raw),
		CreatedAt: now,
		UpdatedAt: now,
	}

	order.PaymentID = valuePtr(payment.ID)
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Insert(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return PaymentSession{}, err
	}

	return PaymentSession{
		PaymentID:   payment.ID,
		Provider:    session.Provider,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt.UTC(),
	}, nil
}

func (s *orderService) ShipOrder(ctx context.Context, cmd ShipOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	sellerID := strings.TrimSpace(cmd.SellerID)
	if sellerID == "" || order.SellerID != sellerID {
		return Order{}, fmt.Errorf("%w: only the seller may ship order %q", ErrOrderUnauthorized, order.ID)
	}

	carrier := strings.TrimSpace(cmd.Carrier)
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	if carrier == "" {
		return Order{}, fmt.Errorf("%w: carrier is required", ErrOrderInvalidInput)
	}
	if tracking == "" {
		return Order{}, fmt.Errorf("%w: tracking number is required", ErrOrderInvalidInput)
	}

	now := s.now()
	prev := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusShipped, now); err != nil {
		return Order{}, err
	}

	shipment := Shipment{
		ID:             shipmentIDPrefix + s.newID(),
		OrderID:        order.ID,
		Carrier:        carrier,
		TrackingNumber: tracking,
		Status:         domain.ShipmentStatusInTransit,
		ShippedAt:      now,
	}
	order.ShipmentID = valuePtr(shipment.ID)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if s.shipments != nil {
			if err := s.shipments.Insert(txCtx, shipment); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishStatusChange(ctx, order, prev, sellerID, nil)
	s.notify(ctx, order.BuyerID, "order_shipped", map[string]string{
		"orderId":        order.ID,
		"carrier":        carrier,
		"trackingNumber": tracking,
	})

	return order, nil
}

func (s *orderService) ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" || order.BuyerID != buyerID {
		return Order{}, fmt.Errorf("%w: only the buyer may confirm order %q", ErrOrderUnauthorized, order.ID)
	}
	if order.Status != domain.OrderStatusShipped {
		return Order{}, fmt.Errorf("%w: order %q is %s, confirmation requires shipped", ErrOrderInvalidState, order.ID, order.Status)
	}

	order, err = s.completeOrder(ctx, order, buyerID, false)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" || (order.BuyerID != userID && order.SellerID != userID) {
		return Order{}, fmt.Errorf("%w: user %q is not a party to order %q", ErrOrderUnauthorized, userID, order.ID)
	}

	if !slices.Contains(orderCancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order %q is %s and can no longer be cancelled", ErrOrderInvalidState, order.ID, order.Status)
	}

	target := domain.OrderStatusCancelled
	var (
		refunded      Payment
		persistRefund bool
	)
	if order.Status == domain.OrderStatusPaid {
		var err error
		refunded, persistRefund, err = s.refundOrderPayment(ctx, order, strings.TrimSpace(cmd.Reason))
		if err != nil {
			return Order{}, err
		}
		target = domain.OrderStatusRefunded
	}

	now := s.now()
	prev := order.Status
	if err := s.applyStatusTransition(&order, target, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		// Put the listing back on the market.
		if err := s.products.UpdateStatus(txCtx, order.ProductID, domain.ProductStatusActive, now); err != nil && !isRepoNotFound(err) {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		// The payment row flips together with the order so a failed write
		// cannot leave a refunded payment against a paid order.
		if persistRefund {
			if err := s.payments.Update(txCtx, refunded); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]string{}
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}
	s.publishStatusChange(ctx, order, prev, userID, metadata)

	counterparty := order.SellerID
	if userID == order.SellerID {
		counterparty = order.BuyerID
	}
	s.notify(ctx, counterparty, "order_cancelled", map[string]string{
		"orderId": order.ID,
	})

	return order, nil
}

func (s *orderService) InvoiceURL(ctx context.Context, cmd InvoiceURLCommand) (string, error) {
	if s.invoices == nil {
		return "", fmt.Errorf("%w: invoice store not configured", ErrOrderInvalidState)
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return "", err
	}
	if err := s.authorizeOrderAccess(order, strings.TrimSpace(cmd.UserID), false); err != nil {
		return "", err
	}

	if order.PaidAt == nil {
		return "", fmt.Errorf("%w: order %q has no settled payment to invoice", ErrOrderInvalidState, order.ID)
	}

	objectPath := ""
	if order.InvoicePath != nil {
		objectPath = *order.InvoicePath
	}
	if objectPath == "" {
		objectPath, err = s.invoices.EnsureInvoice(ctx, order)
		if err != nil {
			return "", fmt.Errorf("order: render invoice: %w", err)
		}
		order.InvoicePath = valuePtr(objectPath)
		order.UpdatedAt = s.now()
		if err := s.orders.Update(ctx, order); err != nil {
			return "", s.mapRepositoryError(err)
		}
	}

	url, err := s.invoices.SignedURL(ctx, objectPath)
	if err != nil {
		return "", fmt.Errorf("order: sign invoice url: %w", err)
	}
	return url, nil
}

func (s *orderService) AutoConfirmOrders(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	orders, err := s.orders.ListAutoConfirmable(ctx, before.UTC(), limit)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	confirmed := 0
	for _, order := range orders {
		if order.Status != domain.OrderStatusShipped {
			continue
		}
		if _, err := s.completeOrder(ctx, order, "", true); err != nil {
			s.logger(ctx, "order.autoconfirm.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
			continue
		}
		confirmed++
	}
	return confirmed, nil
}

// completeOrder moves a shipped order through delivered into completed,
// marking the listing sold.
func (s *orderService) completeOrder(ctx context.Context, order Order, actorID string, auto bool) (Order, error) {
	now := s.now()
	prev := order.Status
	if err := s.applyStatusTransition(&order, domain.OrderStatusDelivered, now); err != nil {
		return Order{}, err
	}
	if err := s.applyStatusTransition(&order, domain.OrderStatusCompleted, now); err != nil {
		return Order{}, err
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.products.UpdateStatus(txCtx, order.ProductID, domain.ProductStatusSold, now); err != nil && !isRepoNotFound(err) {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]string{}
	if auto {
		metadata["autoConfirmed"] = "true"
	}
	s.publishStatusChange(ctx, order, prev, actorID, metadata)
	s.notify(ctx, order.SellerID, "order_completed", map[string]string{
		"orderId": order.ID,
	})
	if auto {
		s.notify(ctx, order.BuyerID, "order_completed", map[string]string{
			"orderId": order.ID,
		})
	}

	return order, nil
}

// refundOrderPayment refunds the order's payment at the gateway and returns
// the refunded payment row for the caller to persist alongside the order
// status flip. The second return is false when no write is needed because the
// payment was already refunded.
func (s *orderService) refundOrderPayment(ctx context.Context, order Order, reason string) (Payment, bool, error) {
	if s.gateway == nil {
		return Payment{}, false, fmt.Errorf("%w: payment gateway not configured", ErrOrderPaymentFailed)
	}
	if order.PaymentID == nil {
		return Payment{}, false, fmt.Errorf("%w: order %q has no payment to refund", ErrOrderInvalidState, order.ID)
	}

	payment, err := s.payments.FindByID(ctx, order.ID, *order.PaymentID)
	if err != nil {
		return Payment{}, false, s.mapRepositoryError(err)
	}
	if payment.Status == domain.PaymentStatusRefunded {
		return payment, false, nil
	}
	if payment.Status != domain.PaymentStatusSucceeded {
		return Payment{}, false, fmt.Errorf("%w: payment %q is %s and cannot be refunded", ErrOrderInvalidState, payment.ID, payment.Status)
	}

	details, err := s.gateway.Refund(ctx, payments.PaymentContext{
		Currency: payment.Amount.Currency,
	}, payments.RefundRequest{
		IntentID: payment.IntentID,
		Reason:   reason,
	})
	if err != nil {
		s.logger(ctx, "order.payment.refund.failed", map[string]any{
			"order":   order.ID,
			"payment": payment.ID,
			"error":   err.Error(),
		})
		return Payment{}, false, ErrOrderPaymentFailed
	}

	now := s.now()
	payment.Status = domain.PaymentStatusRefunded
	payment.RefundedAt = details.RefundedAt
	if payment.RefundedAt == nil {
		payment.RefundedAt = &now
	}
	payment.UpdatedAt = now
	return payment, true, nil
}

// applyStatusTransition moves the order to target, stamping per-status
// timestamps, or reports an invalid transition.
func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	current := order.Status
	if current == target {
		order.UpdatedAt = now
		return nil
	}

	if !canTransitionOrder(current, target) {
		return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current, target)
	}

	order.Status = target
	order.UpdatedAt = now

	switch target {
	case domain.OrderStatusPaid:
		order.PaidAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCompleted:
		order.CompletedAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	case domain.OrderStatusRefunded:
		order.RefundedAt = &now
	}

	return nil
}

func (s *orderService) authorizeOrderAccess(order Order, userID string, asAdmin bool) error {
	if asAdmin {
		return nil
	}
	if userID == "" || (order.BuyerID != userID && order.SellerID != userID) {
		return fmt.Errorf("%w: user %q is not a party to order %q", ErrOrderUnauthorized, userID, order.ID)
	}
	return nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("TR-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) publishStatusChange(ctx context.Context, order Order, prev domain.OrderStatus, actorID string, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["previousStatus"] = string(prev)
	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventStatusChanged,
		OrderID:    order.ID,
		ActorID:    actorID,
		Status:     order.Status,
		OccurredAt: order.UpdatedAt,
		Metadata:   metadata,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"status": string(event.Status),
			"error":  err.Error(),
		})
	}
}

// notify sends a best-effort notification; failures are logged, never returned.
func (s *orderService) notify(ctx context.Context, userID, notifType string, data map[string]string) {
	if s.notifier == nil || userID == "" {
		return
	}
	if _, err := s.notifier.Send(ctx, SendNotificationCommand{
		UserID: userID,
		Type:   notifType,
		Data:   data,
	}); err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"user":  userID,
			"type":  notifType,
			"error": err.Error(),
		})
	}
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}
