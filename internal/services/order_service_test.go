package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/payments"
	"github.com/tarodan/api/internal/repositories"
)

type orderFixture struct {
	orders    *memoryOrderRepo
	payments  *memoryPaymentRepo
	shipments *memoryShipmentRepo
	products  *stubProductRepo
	counters  *stubCounterRepo
	gateway   *stubGateway
	invoices  *stubInvoiceStore
	events    *captureOrderEvents
	notifier  *captureNotifier
	logs      *logCapture
	svc       OrderService
}

func newOrderFixture(t *testing.T, now time.Time) *orderFixture {
	t.Helper()

	f := &orderFixture{
		orders:    newMemoryOrderRepo(),
		payments:  newMemoryPaymentRepo(),
		shipments: newMemoryShipmentRepo(),
		products: &stubProductRepo{products: map[string]domain.Product{
			"prod-a": {ID: "prod-a", SellerID: "selma", Title: "250 GTO 1:43", Status: domain.ProductStatusActive, Price: domain.Money{Amount: 12500, Currency: "USD"}},
		}},
		counters: &stubCounterRepo{},
		gateway:  &stubGateway{},
		invoices: &stubInvoiceStore{},
		events:   &captureOrderEvents{},
		notifier: &captureNotifier{},
		logs:     &logCapture{},
	}

	seq := 0
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    f.orders,
		Payments:  f.payments,
		Shipments: f.shipments,
		Products:  f.products,
		Counters:  f.counters,
		Gateway:   f.gateway,
		Invoices:  f.invoices,
		Clock:     func() time.Time { return now },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("test%04d", seq)
		},
		Events:   f.events,
		Notifier: f.notifier,
		Logger:   f.logs.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	f.svc = svc
	return f
}

func seedOrder(t *testing.T, orders *memoryOrderRepo, order domain.Order) domain.Order {
	t.Helper()
	if err := orders.Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func pendingOrder(id string, now time.Time) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: "TR-2026-000042",
		BuyerID:     "ben",
		SellerID:    "selma",
		ProductID:   "prod-a",
		Total:       domain.Money{Amount: 12500, Currency: "USD"},
		Status:      domain.OrderStatusPendingPayment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestOrderServiceCreateOrder(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{BuyerID: "ben", ProductID: "prod-a"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", order.Status)
	}
	if order.OrderNumber != "TR-2026-000001" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.SellerID != "selma" || order.Total.Amount != 12500 {
		t.Fatalf("unexpected order %+v", order)
	}

	product, _ := f.products.FindByID(context.Background(), "prod-a")
	if product.Status != domain.ProductStatusReserved {
		t.Fatalf("expected listing reserved, got %s", product.Status)
	}

	if len(f.events.events) != 1 || f.events.events[0].Type != orderEventCreated {
		t.Fatalf("expected order.created event, got %+v", f.events.events)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].UserID != "selma" {
		t.Fatalf("expected seller notified, got %+v", f.notifier.sent)
	}
}

func TestOrderServiceCreateOrderGuards(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	if _, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{BuyerID: "selma", ProductID: "prod-a"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input buying own listing, got %v", err)
	}
	if _, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{BuyerID: "ben", ProductID: "prod-missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	f.products.products["prod-a"] = domain.Product{ID: "prod-a", SellerID: "selma", Status: domain.ProductStatusSold}
	if _, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{BuyerID: "ben", ProductID: "prod-a"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for sold listing, got %v", err)
	}
}

func TestOrderServiceStartPayment(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)
	seedOrder(t, f.orders, pendingOrder("ord_1", now))

	session, err := f.svc.StartPayment(context.Background(), StartPaymentCommand{
		OrderID:    "ord_1",
		BuyerID:    "ben",
		SuccessURL: "https://tarodan.example/success",
		CancelURL:  "https://tarodan.example/cancel",
	})
	if err != nil {
		t.Fatalf("start payment: %v", err)
	}

	if session.SessionID != "cs_test" || session.RedirectURL != "https://gateway.example/cs_test" {
		t.Fatalf("unexpected session %+v", session)
	}
	if f.gateway.createdReq.Amount != 12500 || f.gateway.createdReq.Currency != "USD" {
		t.Fatalf("unexpected gateway request %+v", f.gateway.createdReq)
	}

	order, _ := f.orders.FindByID(context.Background(), "ord_1")
	if order.PaymentID == nil || *order.PaymentID != session.PaymentID {
		t.Fatalf("expected payment linked to order, got %v", order.PaymentID)
	}
	payment, err := f.payments.FindByIntent(context.Background(), "pi_test")
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", payment.Status)
	}
}

func TestOrderServiceStartPaymentGuards(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	paid := pendingOrder("ord_paid", now)
	paid.Status = domain.OrderStatusPaid
	seedOrder(t, f.orders, paid)
	seedOrder(t, f.orders, pendingOrder("ord_1", now))

	if _, err := f.svc.StartPayment(context.Background(), StartPaymentCommand{OrderID: "ord_1", BuyerID: "selma", SuccessURL: "https://s", CancelURL: "https://c"}); !errors.Is(err, ErrOrderUnauthorized) {
		t.Fatalf("expected unauthorized for non-buyer, got %v", err)
	}
	if _, err := f.svc.StartPayment(context.Background(), StartPaymentCommand{OrderID: "ord_paid", BuyerID: "ben", SuccessURL: "https://s", CancelURL: "https://c"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for paid order, got %v", err)
	}
	if _, err := f.svc.StartPayment(context.Background(), StartPaymentCommand{OrderID: "ord_1", BuyerID: "ben"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for missing URLs, got %v", err)
	}

	f.gateway.createErr = errors.New("psp timeout")
	if _, err := f.svc.StartPayment(context.Background(), StartPaymentCommand{OrderID: "ord_1", BuyerID: "ben", SuccessURL: "https://s", CancelURL: "https://c"}); !errors.Is(err, ErrOrderPaymentFailed) {
		t.Fatalf("expected payment failed, got %v", err)
	}
	if !f.logs.contains("order.payment.session.failed") {
		t.Fatalf("expected gateway failure logged")
	}
}

func TestOrderServiceShipAndConfirm(t *testing.T) {
	now := time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	paid := pendingOrder("ord_1", now.Add(-time.Hour))
	paid.Status = domain.OrderStatusPaid
	paidAt := now.Add(-time.Hour)
	paid.PaidAt = &paidAt
	seedOrder(t, f.orders, paid)
	f.products.products["prod-a"] = domain.Product{ID: "prod-a", SellerID: "selma", Status: domain.ProductStatusReserved}

	order, err := f.svc.ShipOrder(context.Background(), ShipOrderCommand{OrderID: "ord_1", SellerID: "selma", Carrier: "yamato", TrackingNumber: "YT-1"})
	if err != nil {
		t.Fatalf("ship order: %v", err)
	}
	if order.Status != domain.OrderStatusShipped || order.ShippedAt == nil {
		t.Fatalf("expected shipped, got %+v", order)
	}
	if order.ShipmentID == nil {
		t.Fatalf("expected shipment linked")
	}
	if _, err := f.shipments.FindByOrder(context.Background(), "ord_1"); err != nil {
		t.Fatalf("expected shipment row: %v", err)
	}

	order, err = f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryCommand{OrderID: "ord_1", BuyerID: "ben"})
	if err != nil {
		t.Fatalf("confirm delivery: %v", err)
	}
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", order.Status)
	}
	if order.DeliveredAt == nil || order.CompletedAt == nil {
		t.Fatalf("expected delivery timestamps, got %+v", order)
	}

	product, _ := f.products.FindByID(context.Background(), "prod-a")
	if product.Status != domain.ProductStatusSold {
		t.Fatalf("expected listing sold, got %s", product.Status)
	}
}

func TestOrderServiceShipAndConfirmGuards(t *testing.T) {
	now := time.Date(2026, 4, 3, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	seedOrder(t, f.orders, pendingOrder("ord_pending", now))
	shipped := pendingOrder("ord_shipped", now)
	shipped.Status = domain.OrderStatusShipped
	seedOrder(t, f.orders, shipped)

	if _, err := f.svc.ShipOrder(context.Background(), ShipOrderCommand{OrderID: "ord_pending", SellerID: "ben", Carrier: "yamato", TrackingNumber: "YT-1"}); !errors.Is(err, ErrOrderUnauthorized) {
		t.Fatalf("expected unauthorized for non-seller, got %v", err)
	}
	if _, err := f.svc.ShipOrder(context.Background(), ShipOrderCommand{OrderID: "ord_pending", SellerID: "selma", Carrier: "yamato", TrackingNumber: "YT-1"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state shipping unpaid order, got %v", err)
	}
	if _, err := f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryCommand{OrderID: "ord_shipped", BuyerID: "selma"}); !errors.Is(err, ErrOrderUnauthorized) {
		t.Fatalf("expected unauthorized for non-buyer confirm, got %v", err)
	}
	if _, err := f.svc.ConfirmDelivery(context.Background(), ConfirmDeliveryCommand{OrderID: "ord_pending", BuyerID: "ben"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state confirming unshipped order, got %v", err)
	}
}

func TestOrderServiceCancelBeforePayment(t *testing.T) {
	now := time.Date(2026, 4, 4, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)
	seedOrder(t, f.orders, pendingOrder("ord_1", now))
	f.products.products["prod-a"] = domain.Product{ID: "prod-a", SellerID: "selma", Status: domain.ProductStatusReserved}

	order, err := f.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "ben", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.CancelledAt == nil {
		t.Fatalf("expected cancelled, got %+v", order)
	}
	if f.gateway.refunds != 0 {
		t.Fatalf("expected no refund for unpaid order")
	}

	product, _ := f.products.FindByID(context.Background(), "prod-a")
	if product.Status != domain.ProductStatusActive {
		t.Fatalf("expected listing back on market, got %s", product.Status)
	}
}

func TestOrderServiceCancelPaidRefunds(t *testing.T) {
	now := time.Date(2026, 4, 4, 10, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	paid := pendingOrder("ord_1", now.Add(-time.Hour))
	paid.Status = domain.OrderStatusPaid
	paid.PaymentID = valuePtr("pay_1")
	seedOrder(t, f.orders, paid)
	if err := f.payments.Insert(context.Background(), domain.Payment{
		ID:       "pay_1",
		OrderID:  "ord_1",
		Provider: "stripe",
		IntentID: "pi_1",
		Status:   domain.PaymentStatusSucceeded,
		Amount:   domain.Money{Amount: 12500, Currency: "USD"},
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	order, err := f.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "selma", Reason: "damaged in storage"})
	if err != nil {
		t.Fatalf("cancel paid order: %v", err)
	}
	if order.Status != domain.OrderStatusRefunded || order.RefundedAt == nil {
		t.Fatalf("expected refunded, got %+v", order)
	}
	if f.gateway.refunds != 1 || f.gateway.refundReq.IntentID != "pi_1" {
		t.Fatalf("expected one gateway refund for pi_1, got %d %+v", f.gateway.refunds, f.gateway.refundReq)
	}
	payment, _ := f.payments.FindByIntent(context.Background(), "pi_1")
	if payment.Status != domain.PaymentStatusRefunded {
		t.Fatalf("expected payment refunded, got %s", payment.Status)
	}
}

func TestOrderServiceCancelPaidKeepsPaymentOnFailedOrderWrite(t *testing.T) {
	now := time.Date(2026, 4, 4, 12, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	paid := pendingOrder("ord_1", now.Add(-time.Hour))
	paid.Status = domain.OrderStatusPaid
	paid.PaymentID = valuePtr("pay_1")
	seedOrder(t, f.orders, paid)
	if err := f.payments.Insert(context.Background(), domain.Payment{
		ID:       "pay_1",
		OrderID:  "ord_1",
		Provider: "stripe",
		IntentID: "pi_1",
		Status:   domain.PaymentStatusSucceeded,
		Amount:   domain.Money{Amount: 12500, Currency: "USD"},
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	f.orders.failUpdate = repoError{message: "backend down", unavail: true}

	if _, err := f.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "selma"}); err == nil {
		t.Fatal("expected cancel to fail when the order write fails")
	}

	// The payment row must not record the refund when the order flip did not
	// commit.
	payment, _ := f.payments.FindByIntent(context.Background(), "pi_1")
	if payment.Status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected payment left succeeded, got %s", payment.Status)
	}
	stored, _ := f.orders.FindByID(context.Background(), "ord_1")
	if stored.Status != domain.OrderStatusPaid {
		t.Fatalf("expected order left paid, got %s", stored.Status)
	}
}

func TestOrderServiceCancelGuards(t *testing.T) {
	now := time.Date(2026, 4, 4, 11, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	shipped := pendingOrder("ord_1", now)
	shipped.Status = domain.OrderStatusShipped
	seedOrder(t, f.orders, shipped)

	if _, err := f.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "ben"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for shipped order, got %v", err)
	}
	if _, err := f.svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "mallory"}); !errors.Is(err, ErrOrderUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestOrderServiceInvoiceURL(t *testing.T) {
	now := time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	paid := pendingOrder("ord_1", now.Add(-time.Hour))
	paid.Status = domain.OrderStatusPaid
	paidAt := now.Add(-time.Hour)
	paid.PaidAt = &paidAt
	seedOrder(t, f.orders, paid)
	seedOrder(t, f.orders, pendingOrder("ord_unpaid", now))

	url, err := f.svc.InvoiceURL(context.Background(), InvoiceURLCommand{OrderID: "ord_1", UserID: "ben"})
	if err != nil {
		t.Fatalf("invoice url: %v", err)
	}
	if !strings.HasPrefix(url, "https://storage.example/") {
		t.Fatalf("unexpected url %q", url)
	}
	if f.invoices.renders != 1 {
		t.Fatalf("expected one render, got %d", f.invoices.renders)
	}

	// Second request reuses the stored object.
	if _, err := f.svc.InvoiceURL(context.Background(), InvoiceURLCommand{OrderID: "ord_1", UserID: "selma"}); err != nil {
		t.Fatalf("second invoice url: %v", err)
	}
	if f.invoices.renders != 1 {
		t.Fatalf("expected render reused, got %d", f.invoices.renders)
	}

	if _, err := f.svc.InvoiceURL(context.Background(), InvoiceURLCommand{OrderID: "ord_unpaid", UserID: "ben"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for unpaid order, got %v", err)
	}
	if _, err := f.svc.InvoiceURL(context.Background(), InvoiceURLCommand{OrderID: "ord_1", UserID: "mallory"}); !errors.Is(err, ErrOrderUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestOrderServiceAutoConfirm(t *testing.T) {
	now := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, now)

	old := pendingOrder("ord_old", now.Add(-240*time.Hour))
	old.Status = domain.OrderStatusShipped
	oldShipped := now.Add(-240 * time.Hour)
	old.ShippedAt = &oldShipped
	seedOrder(t, f.orders, old)

	fresh := pendingOrder("ord_fresh", now.Add(-time.Hour))
	fresh.Status = domain.OrderStatusShipped
	freshShipped := now.Add(-time.Hour)
	fresh.ShippedAt = &freshShipped
	seedOrder(t, f.orders, fresh)

	confirmed, err := f.svc.AutoConfirmOrders(context.Background(), now.Add(-168*time.Hour), 10)
	if err != nil {
		t.Fatalf("auto confirm: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("expected 1 auto-confirmed order, got %d", confirmed)
	}

	oldStored, _ := f.orders.FindByID(context.Background(), "ord_old")
	if oldStored.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected old order completed, got %s", oldStored.Status)
	}
	freshStored, _ := f.orders.FindByID(context.Background(), "ord_fresh")
	if freshStored.Status != domain.OrderStatusShipped {
		t.Fatalf("expected fresh order untouched, got %s", freshStored.Status)
	}
}

// --- test doubles -----------------------------------------------------------------

type memoryOrderRepo struct {
	orders     map[string]domain.Order
	failUpdate error
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{orders: make(map[string]domain.Order)}
}

func (m *memoryOrderRepo) Insert(_ context.Context, order domain.Order) error {
	if _, exists := m.orders[order.ID]; exists {
		return repoError{message: "duplicate", conflict: true}
	}
	m.orders[order.ID] = order
	return nil
}

func (m *memoryOrderRepo) Update(_ context.Context, order domain.Order) error {
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, exists := m.orders[order.ID]; !exists {
		return repoError{message: "not found", notFound: true}
	}
	m.orders[order.ID] = order
	return nil
}

func (m *memoryOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, repoError{message: "not found", notFound: true}
	}
	return order, nil
}

func (m *memoryOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	var results []domain.Order
	for _, order := range m.orders {
		if filter.BuyerID != "" && order.BuyerID != filter.BuyerID {
			continue
		}
		if filter.SellerID != "" && order.SellerID != filter.SellerID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, string(order.Status)) {
			continue
		}
		results = append(results, order)
	}
	slices.SortFunc(results, func(a, b domain.Order) int {
		return strings.Compare(a.ID, b.ID)
	})
	return domain.CursorPage[domain.Order]{Items: results}, nil
}

func (m *memoryOrderRepo) ListAutoConfirmable(_ context.Context, before time.Time, limit int) ([]domain.Order, error) {
	var results []domain.Order
	for _, order := range m.orders {
		if order.Status != domain.OrderStatusShipped || order.ShippedAt == nil {
			continue
		}
		if order.ShippedAt.After(before) {
			continue
		}
		results = append(results, order)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

type memoryPaymentRepo struct {
	payments map[string]domain.Payment
}

func newMemoryPaymentRepo() *memoryPaymentRepo {
	return &memoryPaymentRepo{payments: make(map[string]domain.Payment)}
}

func (m *memoryPaymentRepo) Insert(_ context.Context, payment domain.Payment) error {
	if _, exists := m.payments[payment.ID]; exists {
		return repoError{message: "duplicate", conflict: true}
	}
	m.payments[payment.ID] = payment
	return nil
}

func (m *memoryPaymentRepo) Update(_ context.Context, payment domain.Payment) error {
	if _, exists := m.payments[payment.ID]; !exists {
		return repoError{message: "not found", notFound: true}
	}
	m.payments[payment.ID] = payment
	return nil
}

func (m *memoryPaymentRepo) FindByID(_ context.Context, orderID, paymentID string) (domain.Payment, error) {
	payment, ok := m.payments[paymentID]
	if !ok || payment.OrderID != orderID {
		return domain.Payment{}, repoError{message: "not found", notFound: true}
	}
	return payment, nil
}

func (m *memoryPaymentRepo) FindByIntent(_ context.Context, intentID string) (domain.Payment, error) {
	for _, payment := range m.payments {
		if payment.IntentID == intentID {
			return payment, nil
		}
	}
	return domain.Payment{}, repoError{message: "not found", notFound: true}
}

func (m *memoryPaymentRepo) List(_ context.Context, orderID string) ([]domain.Payment, error) {
	var results []domain.Payment
	for _, payment := range m.payments {
		if payment.OrderID == orderID {
			results = append(results, payment)
		}
	}
	slices.SortFunc(results, func(a, b domain.Payment) int {
		return strings.Compare(a.ID, b.ID)
	})
	return results, nil
}

type stubCounterRepo struct {
	counts map[string]int64
}

func (s *stubCounterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[counterID] += step
	return s.counts[counterID], nil
}

type stubGateway struct {
	createdReq payments.CheckoutSessionRequest
	createErr  error
	refundReq  payments.RefundRequest
	refunds    int
	refundErr  error
}

func (s *stubGateway) CreateCheckoutSession(_ context.Context, _ payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.createdReq = req
	if s.createErr != nil {
		return payments.CheckoutSession{}, s.createErr
	}
	return payments.CheckoutSession{
		ID:          "cs_test",
		Provider:    "stripe",
		IntentID:    "pi_test",
		RedirectURL: "https://gateway.example/cs_test",
	}, nil
}

func (s *stubGateway) Refund(_ context.Context, _ payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	s.refundReq = req
	if s.refundErr != nil {
		return payments.PaymentDetails{}, s.refundErr
	}
	s.refunds++
	return payments.PaymentDetails{
		IntentID: req.IntentID,
		Status:   payments.StatusRefunded,
	}, nil
}

type stubInvoiceStore struct {
	renders int
}

func (s *stubInvoiceStore) EnsureInvoice(_ context.Context, order domain.Order) (string, error) {
	s.renders++
	return "invoices/" + order.ID + ".html", nil
}

func (s *stubInvoiceStore) SignedURL(_ context.Context, objectPath string) (string, error) {
	return "https://storage.example/" + objectPath, nil
}

type captureOrderEvents struct {
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return nil
}
