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

const tradesCollection = "trades"

// TradeRepository persists trade proposals and their lifecycle state.
type TradeRepository struct {
	base *pfirestore.BaseRepository[tradeDocument]
}

// NewTradeRepository constructs a Firestore-backed trade repository.
func NewTradeRepository(provider *pfirestore.Provider) (*TradeRepository, error) {
	if provider == nil {
		return nil, errors.New("trade repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[tradeDocument](provider, tradesCollection, nil, nil)
	return &TradeRepository{base: base}, nil
}

// Insert stores a new trade document. The ID must be unique.
func (r *TradeRepository) Insert(ctx context.Context, trade domain.Trade) error {
	if r == nil || r.base == nil {
		return errors.New("trade repository not initialised")
	}
	tradeID := strings.TrimSpace(trade.ID)
	if tradeID == "" {
		return errors.New("trade repository: trade id is required")
	}
	if _, err := r.base.Create(ctx, tradeID, encodeTradeDocument(trade)); err != nil {
		return err
	}
	return nil
}

// Update replaces the persisted trade state with the provided snapshot.
func (r *TradeRepository) Update(ctx context.Context, trade domain.Trade) error {
	if r == nil || r.base == nil {
		return errors.New("trade repository not initialised")
	}
	tradeID := strings.TrimSpace(trade.ID)
	if tradeID == "" {
		return errors.New("trade repository: trade id is required")
	}
	if _, err := r.base.Set(ctx, tradeID, encodeTradeDocument(trade)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single trade.
func (r *TradeRepository) FindByID(ctx context.Context, tradeID string) (domain.Trade, error) {
	if r == nil || r.base == nil {
		return domain.Trade{}, errors.New("trade repository not initialised")
	}
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return domain.Trade{}, errors.New("trade repository: trade id is required")
	}
	doc, err := r.base.Get(ctx, tradeID)
	if err != nil {
		return domain.Trade{}, err
	}
	return decodeTradeDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// List returns trades matching the filter ordered by most recent creation.
// PartyID matches either side via the persisted parties array.
func (r *TradeRepository) List(ctx context.Context, filter repositories.TradeListFilter) (domain.CursorPage[domain.Trade], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Trade]{}, errors.New("trade repository not initialised")
	}

	limit, fetchLimit := pageWindow(filter.Pagination)

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Trade]{}, fmt.Errorf("trade repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	partyID := strings.TrimSpace(filter.PartyID)
	statusFilters := normaliseStatusFilters(filter.Status)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if partyID != "" {
			q = q.Where("parties", "array-contains", partyID)
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
		return domain.CursorPage[domain.Trade]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeCursor(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Trade, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeTradeDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return domain.CursorPage[domain.Trade]{Items: items, NextPageToken: nextToken}, nil
}

// ListAutoConfirmable returns shipped trades whose shipped timestamp is older
// than the cutoff.
func (r *TradeRepository) ListAutoConfirmable(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("trade repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.TradeStatusShipped)).
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

	trades := make([]domain.Trade, 0, len(docs))
	for _, doc := range docs {
		trades = append(trades, decodeTradeDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime))
	}
	return trades, nil
}

type tradeDocument struct {
	InitiatorID        string              `firestore:"initiatorId"`
	ReceiverID         string              `firestore:"receiverId"`
	Parties            []string            `firestore:"parties"`
	Status             string              `firestore:"status"`
	InitiatorItems     []tradeItemDocument `firestore:"initiatorItems"`
	ReceiverItems      []tradeItemDocument `firestore:"receiverItems"`
	CashAdjustment     *moneyDocument      `firestore:"cashAdjustment,omitempty"`
	Message            string              `firestore:"message,omitempty"`
	CounterOfID        *string             `firestore:"counterOfId,omitempty"`
	InitiatorShipped   bool                `firestore:"initiatorShipped"`
	ReceiverShipped    bool                `firestore:"receiverShipped"`
	InitiatorConfirmed bool                `firestore:"initiatorConfirmed"`
	ReceiverConfirmed  bool                `firestore:"receiverConfirmed"`
	CreatedAt          time.Time           `firestore:"createdAt"`
	UpdatedAt          time.Time           `firestore:"updatedAt"`
	AcceptedAt         *time.Time          `firestore:"acceptedAt,omitempty"`
	ShippedAt          *time.Time          `firestore:"shippedAt,omitempty"`
	CompletedAt        *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt        *time.Time          `firestore:"cancelledAt,omitempty"`
	DisputedAt         *time.Time          `firestore:"disputedAt,omitempty"`
}

type tradeItemDocument struct {
	ProductID string `firestore:"productId"`
	Title     string `firestore:"title"`
	Side      string `firestore:"side"`
}

func encodeTradeDocument(trade domain.Trade) tradeDocument {
	return tradeDocument{
		InitiatorID:        strings.TrimSpace(trade.InitiatorID),
		ReceiverID:         strings.TrimSpace(trade.ReceiverID),
		Parties:            []string{strings.TrimSpace(trade.InitiatorID), strings.TrimSpace(trade.ReceiverID)},
		Status:             string(trade.Status),
		InitiatorItems:     encodeTradeItems(trade.InitiatorItems),
		ReceiverItems:      encodeTradeItems(trade.ReceiverItems),
		CashAdjustment:     encodeMoneyPointer(trade.CashAdjustment),
		Message:            strings.TrimSpace(trade.Message),
		CounterOfID:        normalizeStringPointer(trade.CounterOfID),
		InitiatorShipped:   trade.InitiatorShipped,
		ReceiverShipped:    trade.ReceiverShipped,
		InitiatorConfirmed: trade.InitiatorConfirmed,
		ReceiverConfirmed:  trade.ReceiverConfirmed,
		CreatedAt:          trade.CreatedAt.UTC(),
		UpdatedAt:          trade.UpdatedAt.UTC(),
		AcceptedAt:         normalizeTimePointer(trade.AcceptedAt),
		ShippedAt:          normalizeTimePointer(trade.ShippedAt),
		CompletedAt:        normalizeTimePointer(trade.CompletedAt),
		CancelledAt:        normalizeTimePointer(trade.CancelledAt),
		DisputedAt:         normalizeTimePointer(trade.DisputedAt),
	}
}

func decodeTradeDocument(id string, doc tradeDocument, createdAt, updatedAt time.Time) domain.Trade {
	return domain.Trade{
		ID:                 strings.TrimSpace(id),
		InitiatorID:        strings.TrimSpace(doc.InitiatorID),
		ReceiverID:         strings.TrimSpace(doc.ReceiverID),
		Status:             domain.TradeStatus(strings.TrimSpace(doc.Status)),
		InitiatorItems:     decodeTradeItems(doc.InitiatorItems),
		ReceiverItems:      decodeTradeItems(doc.ReceiverItems),
		CashAdjustment:     decodeMoneyPointer(doc.CashAdjustment),
		Message:            doc.Message,
		CounterOfID:        normalizeStringPointer(doc.CounterOfID),
		InitiatorShipped:   doc.InitiatorShipped,
		ReceiverShipped:    doc.ReceiverShipped,
		InitiatorConfirmed: doc.InitiatorConfirmed,
		ReceiverConfirmed:  doc.ReceiverConfirmed,
		CreatedAt:          chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt:          chooseTime(doc.UpdatedAt, updatedAt),
		AcceptedAt:         normalizeTimePointer(doc.AcceptedAt),
		ShippedAt:          normalizeTimePointer(doc.ShippedAt),
		CompletedAt:        normalizeTimePointer(doc.CompletedAt),
		CancelledAt:        normalizeTimePointer(doc.CancelledAt),
		DisputedAt:         normalizeTimePointer(doc.DisputedAt),
	}
}

func encodeTradeItems(items []domain.TradeItem) []tradeItemDocument {
	if len(items) == 0 {
		return nil
	}
	docs := make([]tradeItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, tradeItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Title:     strings.TrimSpace(item.Title),
			Side:      string(item.Side),
		})
	}
	return docs
}

func decodeTradeItems(docs []tradeItemDocument) []domain.TradeItem {
	if len(docs) == 0 {
		return nil
	}
	items := make([]domain.TradeItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.TradeItem{
			ProductID: strings.TrimSpace(doc.ProductID),
			Title:     strings.TrimSpace(doc.Title),
			Side:      domain.TradeSide(strings.TrimSpace(doc.Side)),
		})
	}
	return items
}
