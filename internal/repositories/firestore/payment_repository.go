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

const paymentsCollection = "payments"

// PaymentRepository stores gateway payment records. Payments live in a
// top-level collection keyed by payment ID so webhook lookups by intent
// do not need the order ID.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil)
	return &PaymentRepository{base: base}, nil
}

// Insert stores a new payment document.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	if _, err := r.base.Create(ctx, paymentID, encodePaymentDocument(payment)); err != nil {
		return err
	}
	return nil
}

// Update overwrites the payment document with the latest gateway state.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return errors.New("payment repository: payment id is required")
	}
	if _, err := r.base.Set(ctx, paymentID, encodePaymentDocument(payment)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a payment and verifies it belongs to the given order.
func (r *PaymentRepository) FindByID(ctx context.Context, orderID string, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	paymentID = strings.TrimSpace(paymentID)
	if orderID == "" || paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: order id and payment id are required")
	}

	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	payment := decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
	if payment.OrderID != orderID {
		return domain.Payment{}, pfirestore.WrapError("payments.findById", status.Error(codes.NotFound, "payment not found for order"))
	}
	return payment, nil
}

// FindByIntent resolves a payment by the gateway's intent identifier.
func (r *PaymentRepository) FindByIntent(ctx context.Context, intentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Payment{}, errors.New("payment repository: intent id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("intentId", "==", intentID).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.WrapError("payments.findByIntent", status.Error(codes.NotFound, "payment not found"))
	}
	return decodePaymentDocument(docs[0].ID, docs[0].Data, docs[0].CreateTime, docs[0].UpdateTime), nil
}

// List returns all payment attempts for an order, oldest first.
func (r *PaymentRepository) List(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("payment repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, decodePaymentDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return payments, nil
}

type paymentDocument struct {
	OrderID    string         `firestore:"orderId"`
	Provider   string         `firestore:"provider"`
	IntentID   string         `firestore:"intentId,omitempty"`
	SessionID  string         `firestore:"sessionId,omitempty"`
	Status     string         `firestore:"status"`
	Amount     moneyDocument  `firestore:"amount"`
	Raw        map[string]any `firestore:"raw,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
	UpdatedAt  time.Time      `firestore:"updatedAt"`
	CapturedAt *time.Time     `firestore:"capturedAt,omitempty"`
	RefundedAt *time.Time     `firestore:"refundedAt,omitempty"`
}

func encodePaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:    strings.TrimSpace(payment.OrderID),
		Provider:   strings.TrimSpace(payment.Provider),
		IntentID:   strings.TrimSpace(payment.IntentID),
		SessionID:  strings.TrimSpace(payment.SessionID),
		Status:     string(payment.Status),
		Amount:     encodeMoney(payment.Amount),
		Raw:        payment.Raw,
		CreatedAt:  payment.CreatedAt.UTC(),
		UpdatedAt:  payment.UpdatedAt.UTC(),
		CapturedAt: normalizeTimePointer(payment.CapturedAt),
		RefundedAt: normalizeTimePointer(payment.RefundedAt),
	}
}

func decodePaymentDocument(id string, doc paymentDocument, createdAt, updatedAt time.Time) domain.Payment {
	return domain.Payment{
		ID:         strings.TrimSpace(id),
		OrderID:    strings.TrimSpace(doc.OrderID),
		Provider:   strings.TrimSpace(doc.Provider),
		IntentID:   strings.TrimSpace(doc.IntentID),
		SessionID:  strings.TrimSpace(doc.SessionID),
		Status:     domain.PaymentStatus(strings.TrimSpace(doc.Status)),
		Amount:     decodeMoney(doc.Amount),
		Raw:        doc.Raw,
		CreatedAt:  chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:  chooseTime(doc.UpdatedAt, updatedAt),
		CapturedAt: normalizeTimePointer(doc.CapturedAt),
		RefundedAt: normalizeTimePointer(doc.RefundedAt),
	}
}
