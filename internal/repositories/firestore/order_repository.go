package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tarodan/api/internal/domain"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
	"github.com/tarodan/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order headers and query helpers for buyers and sellers.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert stores a new order document. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Create(ctx, orderID, encodeOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// Update replaces the persisted order state with the provided snapshot.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if _, err := r.base.Set(ctx, orderID, encodeOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns orders matching the filter ordered by most recent creation.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit, fetchLimit := pageWindow(filter.Pagination)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	buyerID := strings.TrimSpace(filter.BuyerID)
	sellerID := strings.TrimSpace(filter.SellerID)
	statusFilters := normaliseStatusFilters(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if buyerID != "" {
			q = q.Where("buyerId", "==", buyerID)
		}
		if sellerID != "" {
			q = q.Where("sellerId", "==", sellerID)
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			q = q.Where("status", "in", statusFilters)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}

		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeCursor(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

// ListAutoConfirmable returns shipped orders whose shipped timestamp is older
// than the cutoff.
func (r *OrderRepository) ListAutoConfirmable(ctx context.Context, before time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.OrderStatusShipped)).
			Where("shippedAt", "<=", before.UTC()).
			OrderBy("shippedAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return orders, nil
}

type orderDocument struct {
	OrderNumber string        `firestore:"orderNumber"`
	BuyerID     string        `firestore:"buyerId"`
	SellerID    string        `firestore:"sellerId"`
	ProductID   string        `firestore:"productId"`
	Total       moneyDocument `firestore:"total"`
	Status      string        `firestore:"status"`
	PaymentID   *string       `firestore:"paymentId,omitempty"`
	ShipmentID  *string       `firestore:"shipmentId,omitempty"`
	InvoicePath *string       `firestore:"invoicePath,omitempty"`
	CreatedAt   time.Time     `firestore:"createdAt"`
	UpdatedAt   time.Time     `firestore:"updatedAt"`
	PaidAt      *time.Time    `firestore:"paidAt,omitempty"`
	ShippedAt   *time.Time    `firestore:"shippedAt,omitempty"`
	DeliveredAt *time.Time    `firestore:"deliveredAt,omitempty"`
	CompletedAt *time.Time    `firestore:"completedAt,omitempty"`
	CancelledAt *time.Time    `firestore:"cancelledAt,omitempty"`
	RefundedAt  *time.Time    `firestore:"refundedAt,omitempty"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		BuyerID:     strings.TrimSpace(order.BuyerID),
		SellerID:    strings.TrimSpace(order.SellerID),
		ProductID:   strings.TrimSpace(order.ProductID),
		Total:       encodeMoney(order.Total),
		Status:      string(order.Status),
		PaymentID:   normalizeStringPointer(order.PaymentID),
		ShipmentID:  normalizeStringPointer(order.ShipmentID),
		InvoicePath: normalizeStringPointer(order.InvoicePath),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		PaidAt:      normalizeTimePointer(order.PaidAt),
		ShippedAt:   normalizeTimePointer(order.ShippedAt),
		DeliveredAt: normalizeTimePointer(order.DeliveredAt),
		CompletedAt: normalizeTimePointer(order.CompletedAt),
		CancelledAt: normalizeTimePointer(order.CancelledAt),
		RefundedAt:  normalizeTimePointer(order.RefundedAt),
	}
}

func decodeOrderDocument(id string, doc orderDocument, createdAt, updatedAt time.Time) domain.Order {
	return domain.Order{
		ID:          strings.TrimSpace(id),
		OrderNumber: strings.TrimSpace(doc.OrderNumber),
		BuyerID:     strings.TrimSpace(doc.BuyerID),
		SellerID:    strings.TrimSpace(doc.SellerID),
		ProductID:   strings.TrimSpace(doc.ProductID),
		Total:       decodeMoney(doc.Total),
		Status:      domain.OrderStatus(strings.TrimSpace(doc.Status)),
		PaymentID:   normalizeStringPointer(doc.PaymentID),
		ShipmentID:  normalizeStringPointer(doc.ShipmentID),
		InvoicePath: normalizeStringPointer(doc.InvoicePath),
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:   chooseTime(doc.UpdatedAt, updatedAt),
		PaidAt:      normalizeTimePointer(doc.PaidAt),
		ShippedAt:   normalizeTimePointer(doc.ShippedAt),
		DeliveredAt: normalizeTimePointer(doc.DeliveredAt),
		CompletedAt: normalizeTimePointer(doc.CompletedAt),
		CancelledAt: normalizeTimePointer(doc.CancelledAt),
		RefundedAt:  normalizeTimePointer(doc.RefundedAt),
	}
}
