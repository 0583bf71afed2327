package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/tarodan/api/internal/domain"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
)

const shipmentsCollection = "shipments"

// ShipmentRepository stores carrier handoffs for trade sides and orders.
type ShipmentRepository struct {
	base *pfirestore.BaseRepository[shipmentDocument]
}

// NewShipmentRepository constructs a Firestore-backed shipment repository.
func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[shipmentDocument](provider, shipmentsCollection, nil, nil)
	return &ShipmentRepository{base: base}, nil
}

// Insert stores a new shipment document.
func (r *ShipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	if r == nil || r.base == nil {
		return errors.New("shipment repository not initialised")
	}
	shipmentID := strings.TrimSpace(shipment.ID)
	if shipmentID == "" {
		return errors.New("shipment repository: shipment id is required")
	}
	if _, err := r.base.Create(ctx, shipmentID, encodeShipmentDocument(shipment)); err != nil {
		return err
	}
	return nil
}

// Update overwrites the shipment document, typically on carrier status changes.
func (r *ShipmentRepository) Update(ctx context.Context, shipment domain.Shipment) error {
	if r == nil || r.base == nil {
		return errors.New("shipment repository not initialised")
	}
	shipmentID := strings.TrimSpace(shipment.ID)
	if shipmentID == "" {
		return errors.New("shipment repository: shipment id is required")
	}
	if _, err := r.base.Set(ctx, shipmentID, encodeShipmentDocument(shipment)); err != nil {
		return err
	}
	return nil
}

// ListByTrade returns all shipments recorded for a trade, oldest first.
func (r *ShipmentRepository) ListByTrade(ctx context.Context, tradeID string) ([]domain.Shipment, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("shipment repository not initialised")
	}
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return nil, errors.New("shipment repository: trade id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("tradeId", "==", tradeID).OrderBy("shippedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	shipments := make([]domain.Shipment, 0, len(docs))
	for _, doc := range docs {
		shipments = append(shipments, decodeShipmentDocument(doc.ID, doc.Data))
	}
	return shipments, nil
}

// FindByOrder returns the shipment attached to an order, or a not-found error.
func (r *ShipmentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	if r == nil || r.base == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Shipment{}, errors.New("shipment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	if len(docs) == 0 {
		return domain.Shipment{}, pfirestore.WrapError("shipments.findByOrder", status.Error(codes.NotFound, "shipment not found"))
	}
	return decodeShipmentDocument(docs[0].ID, docs[0].Data), nil
}

type shipmentDocument struct {
	TradeID        string     `firestore:"tradeId,omitempty"`
	OrderID        string     `firestore:"orderId,omitempty"`
	Side           string     `firestore:"side,omitempty"`
	Carrier        string     `firestore:"carrier"`
	TrackingNumber string     `firestore:"trackingNumber"`
	Status         string     `firestore:"status"`
	ShippedAt      time.Time  `firestore:"shippedAt"`
	DeliveredAt    *time.Time `firestore:"deliveredAt,omitempty"`
}

func encodeShipmentDocument(shipment domain.Shipment) shipmentDocument {
	return shipmentDocument{
		TradeID:        strings.TrimSpace(shipment.TradeID),
		OrderID:        strings.TrimSpace(shipment.OrderID),
		Side:           string(shipment.Side),
		Carrier:        strings.TrimSpace(shipment.Carrier),
		TrackingNumber: strings.TrimSpace(shipment.TrackingNumber),
		Status:         string(shipment.Status),
		ShippedAt:      shipment.ShippedAt.UTC(),
		DeliveredAt:    normalizeTimePointer(shipment.DeliveredAt),
	}
}

func decodeShipmentDocument(id string, doc shipmentDocument) domain.Shipment {
	return domain.Shipment{
		ID:             strings.TrimSpace(id),
		TradeID:        strings.TrimSpace(doc.TradeID),
		OrderID:        strings.TrimSpace(doc.OrderID),
		Side:           domain.TradeSide(strings.TrimSpace(doc.Side)),
		Carrier:        doc.Carrier,
		TrackingNumber: doc.TrackingNumber,
		Status:         domain.ShipmentStatus(strings.TrimSpace(doc.Status)),
		ShippedAt:      doc.ShippedAt.UTC(),
		DeliveredAt:    normalizeTimePointer(doc.DeliveredAt),
	}
}
