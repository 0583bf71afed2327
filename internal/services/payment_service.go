package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/repositories"
)

const (
	gatewayEventSucceeded = "payment.succeeded"
	gatewayEventFailed    = "payment.failed"
	gatewayEventRefunded  = "payment.refunded"
)

var (
	// ErrPaymentInvalidInput signals a malformed gateway event.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates no payment matches the lookup.
	ErrPaymentNotFound = errors.New("payment: not found")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	Products   repositories.ProductRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Events     OrderEventPublisher
	Notifier   NotificationSender
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	events     OrderEventPublisher
	notifier   NotificationSender
	logger     func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		products:   deps.Products,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events:   deps.Events,
		notifier: deps.Notifier,
		logger:   logger,
	}, nil
}

// HandleGatewayEvent reconciles a webhook event onto the payment and its
// order. Replayed events are acknowledged without a second write so the
// gateway can retry safely.
func (s *paymentService) HandleGatewayEvent(ctx context.Context, cmd GatewayEventCommand) error {
	intentID := strings.TrimSpace(cmd.IntentID)
	if intentID == "" {
		return fmt.Errorf("%w: intent id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByIntent(ctx, intentID)
	if err != nil {
		if isRepoNotFound(err) {
			// Unknown intents are acknowledged so the gateway stops retrying;
			// they usually belong to sessions created outside this system.
			s.logger(ctx, "payment.webhook.unknown_intent", map[string]any{
				"provider": cmd.Provider,
				"intent":   intentID,
				"event":    cmd.EventID,
			})
			return nil
		}
		return s.mapRepositoryError(err)
	}

	switch strings.TrimSpace(cmd.Type) {
	case gatewayEventSucceeded:
		return s.markSucceeded(ctx, payment, cmd)
	case gatewayEventFailed:
		return s.markFailed(ctx, payment, cmd)
	case gatewayEventRefunded:
		return s.markRefunded(ctx, payment, cmd)
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"provider": cmd.Provider,
			"type":     cmd.Type,
			"event":    cmd.EventID,
		})
		return nil
	}
}

func (s *paymentService) ListPayments(ctx context.Context, orderID string) ([]Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	rows, err := s.payments.List(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return rows, nil
}

func (s *paymentService) markSucceeded(ctx context.Context, payment Payment, cmd GatewayEventCommand) error {
	if payment.Status == domain.PaymentStatusSucceeded {
		return nil
	}
	if payment.Status != domain.PaymentStatusPending {
		return fmt.Errorf("payment: cannot settle payment %q in status %s", payment.ID, payment.Status)
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusPendingPayment {
		return fmt.Errorf("payment: order %q is %s, cannot mark paid", order.ID, order.Status)
	}

	now := s.now()
	payment.Status = domain.PaymentStatusSucceeded
	payment.CapturedAt = &now
	payment.UpdatedAt = now
	if cmd.Raw != nil {
		payment.Raw = cmd.Raw
	}

	prev := order.Status
	order.Status = domain.OrderStatusPaid
	order.PaidAt = &now
	order.UpdatedAt = now

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Update(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventStatusChanged,
		OrderID:    order.ID,
		Status:     order.Status,
		OccurredAt: now,
		Metadata: map[string]string{
			"previousStatus": string(prev),
			"paymentId":      payment.ID,
			"gatewayEvent":   cmd.EventID,
		},
	})
	s.notify(ctx, order.BuyerID, "payment_received", map[string]string{
		"orderId": order.ID,
	})
	s.notify(ctx, order.SellerID, "order_paid", map[string]string{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	})

	return nil
}

func (s *paymentService) markFailed(ctx context.Context, payment Payment, cmd GatewayEventCommand) error {
	if payment.Status == domain.PaymentStatusFailed {
		return nil
	}
	if payment.Status != domain.PaymentStatusPending {
		// Late failure events for settled payments are noise, not errors.
		s.logger(ctx, "payment.webhook.stale_failure", map[string]any{
			"payment": payment.ID,
			"status":  string(payment.Status),
			"event":   cmd.EventID,
		})
		return nil
	}

	now := s.now()
	payment.Status = domain.PaymentStatusFailed
	payment.UpdatedAt = now
	if cmd.Raw != nil {
		payment.Raw = cmd.Raw
	}
	if err := s.payments.Update(ctx, payment); err != nil {
		return s.mapRepositoryError(err)
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	// The order stays in pending_payment; the buyer can start a new session.
	s.notify(ctx, order.BuyerID, "payment_failed", map[string]string{
		"orderId": order.ID,
	})
	return nil
}

func (s *paymentService) markRefunded(ctx context.Context, payment Payment, cmd GatewayEventCommand) error {
	if payment.Status == domain.PaymentStatusRefunded {
		return nil
	}
	if payment.Status != domain.PaymentStatusSucceeded {
		return fmt.Errorf("payment: cannot refund payment %q in status %s", payment.ID, payment.Status)
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	now := s.now()
	payment.Status = domain.PaymentStatusRefunded
	payment.RefundedAt = &now
	payment.UpdatedAt = now
	if cmd.Raw != nil {
		payment.Raw = cmd.Raw
	}

	prev := order.Status
	if order.Status != domain.OrderStatusRefunded {
		order.Status = domain.OrderStatusRefunded
		order.RefundedAt = &now
		order.UpdatedAt = now
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Update(txCtx, payment); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if s.products != nil {
			if err := s.products.UpdateStatus(txCtx, order.ProductID, domain.ProductStatusActive, now); err != nil && !isRepoNotFound(err) {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if prev != order.Status {
		s.publishEvent(ctx, OrderEvent{
			Type:       orderEventStatusChanged,
			OrderID:    order.ID,
			Status:     order.Status,
			OccurredAt: now,
			Metadata: map[string]string{
				"previousStatus": string(prev),
				"paymentId":      payment.ID,
				"gatewayEvent":   cmd.EventID,
			},
		})
	}
	s.notify(ctx, order.BuyerID, "payment_refunded", map[string]string{
		"orderId": order.ID,
	})
	return nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *paymentService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *paymentService) notify(ctx context.Context, userID, notifType string, data map[string]string) {
	if s.notifier == nil || userID == "" {
		return
	}
	if _, err := s.notifier.Send(ctx, SendNotificationCommand{
		UserID: userID,
		Type:   notifType,
		Data:   data,
	}); err != nil {
		s.logger(ctx, "payment.notify.failed", map[string]any{
			"user":  userID,
			"type":  notifType,
			"error": err.Error(),
		})
	}
}

func (s *paymentService) now() time.Time {
	return s.clock()
}
