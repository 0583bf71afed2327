package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/tarodan/api/internal/domain"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
)

const (
	ratingsCollection     = "ratings"
	ratingSlotsCollection = "ratingSlots"
)

// RatingRepository stores one-shot ratings. Uniqueness per giver and subject
// is enforced with a slot document created in the same transaction as the
// rating itself, so concurrent submissions cannot double-rate.
type RatingRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[ratingDocument]
}

// NewRatingRepository constructs a Firestore-backed rating repository.
func NewRatingRepository(provider *pfirestore.Provider) (*RatingRepository, error) {
	if provider == nil {
		return nil, errors.New("rating repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[ratingDocument](provider, ratingsCollection, nil, nil)
	return &RatingRepository{provider: provider, base: base}, nil
}

// Insert stores the rating and claims its uniqueness slot atomically. It
// returns a conflict error when the giver already rated the order or trade.
func (r *RatingRepository) Insert(ctx context.Context, rating domain.Rating) (domain.Rating, error) {
	if r == nil || r.base == nil {
		return domain.Rating{}, errors.New("rating repository not initialised")
	}
	ratingID := strings.TrimSpace(rating.ID)
	if ratingID == "" {
		return domain.Rating{}, errors.New("rating repository: rating id is required")
	}
	slotID, err := ratingSlotID(rating)
	if err != nil {
		return domain.Rating{}, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Rating{}, err
	}
	ratingRef := client.Collection(ratingsCollection).Doc(ratingID)
	slotRef := client.Collection(ratingSlotsCollection).Doc(slotID)

	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(slotRef, ratingSlotDocument{
			RatingID:  ratingID,
			CreatedAt: rating.CreatedAt.UTC(),
		}); err != nil {
			return err
		}
		return tx.Create(ratingRef, encodeRatingDocument(rating))
	})
	if err != nil {
		return domain.Rating{}, pfirestore.WrapError("ratings.insert", err)
	}
	return rating, nil
}

// FindByID fetches a single rating.
func (r *RatingRepository) FindByID(ctx context.Context, ratingID string) (domain.Rating, error) {
	if r == nil || r.base == nil {
		return domain.Rating{}, errors.New("rating repository not initialised")
	}
	ratingID = strings.TrimSpace(ratingID)
	if ratingID == "" {
		return domain.Rating{}, errors.New("rating repository: rating id is required")
	}
	doc, err := r.base.Get(ctx, ratingID)
	if err != nil {
		return domain.Rating{}, err
	}
	return decodeRatingDocument(doc.ID, doc.Data, doc.CreateTime), nil
}

// FindByGiverAndOrder returns the rating of the given kind the giver left on
// an order, or a not-found error.
func (r *RatingRepository) FindByGiverAndOrder(ctx context.Context, giverID string, orderID string, kind domain.RatingKind) (domain.Rating, error) {
	if r == nil || r.base == nil {
		return domain.Rating{}, errors.New("rating repository not initialised")
	}
	giverID = strings.TrimSpace(giverID)
	orderID = strings.TrimSpace(orderID)
	if giverID == "" || orderID == "" {
		return domain.Rating{}, errors.New("rating repository: giver id and order id are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("giverId", "==", giverID).
			Where("orderId", "==", orderID).
			Where("kind", "==", string(kind)).
			Limit(1)
	})
	if err != nil {
		return domain.Rating{}, err
	}
	if len(docs) == 0 {
		return domain.Rating{}, pfirestore.WrapError("ratings.findByGiverAndOrder", status.Error(codes.NotFound, "rating not found"))
	}
	return decodeRatingDocument(docs[0].ID, docs[0].Data, docs[0].CreateTime), nil
}

// FindByGiverAndTrade returns the rating the giver left on a trade, or a
// not-found error.
func (r *RatingRepository) FindByGiverAndTrade(ctx context.Context, giverID string, tradeID string) (domain.Rating, error) {
	if r == nil || r.base == nil {
		return domain.Rating{}, errors.New("rating repository not initialised")
	}
	giverID = strings.TrimSpace(giverID)
	tradeID = strings.TrimSpace(tradeID)
	if giverID == "" || tradeID == "" {
		return domain.Rating{}, errors.New("rating repository: giver id and trade id are required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("giverId", "==", giverID).
			Where("tradeId", "==", tradeID).
			Limit(1)
	})
	if err != nil {
		return domain.Rating{}, err
	}
	if len(docs) == 0 {
		return domain.Rating{}, pfirestore.WrapError("ratings.findByGiverAndTrade", status.Error(codes.NotFound, "rating not found"))
	}
	return decodeRatingDocument(docs[0].ID, docs[0].Data, docs[0].CreateTime), nil
}

// ListByReceiver returns user ratings received by a user, newest first.
func (r *RatingRepository) ListByReceiver(ctx context.Context, receiverID string, pager domain.Pagination) (domain.CursorPage[domain.Rating], error) {
	return r.listRatings(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("receiverId", "==", strings.TrimSpace(receiverID)).
			Where("kind", "==", string(domain.RatingKindUser))
	})
}

// ListByProduct returns product ratings for a listing, newest first.
func (r *RatingRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Rating], error) {
	return r.listRatings(ctx, pager, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", strings.TrimSpace(productID)).
			Where("kind", "==", string(domain.RatingKindProduct))
	})
}

// SummarizeReceiver aggregates user rating scores received by a user.
func (r *RatingRepository) SummarizeReceiver(ctx context.Context, receiverID string) (domain.RatingSummary, error) {
	return r.summarize(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("receiverId", "==", strings.TrimSpace(receiverID)).
			Where("kind", "==", string(domain.RatingKindUser))
	})
}

// SummarizeProduct aggregates product rating scores for a listing.
func (r *RatingRepository) SummarizeProduct(ctx context.Context, productID string) (domain.RatingSummary, error) {
	return r.summarize(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", strings.TrimSpace(productID)).
			Where("kind", "==", string(domain.RatingKindProduct))
	})
}

func (r *RatingRepository) listRatings(ctx context.Context, pager domain.Pagination, scope pfirestore.QueryBuilder) (domain.CursorPage[domain.Rating], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Rating]{}, errors.New("rating repository not initialised")
	}

	limit, fetchLimit := pageWindow(pager)

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeTimeCursor(token)
		if err != nil {
			return domain.CursorPage[domain.Rating]{}, fmt.Errorf("rating repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = scope(q)
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
		return domain.CursorPage[domain.Rating]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeTimeCursor(chooseTime(last.Data.CreatedAt, last.CreateTime), last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Rating, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeRatingDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return domain.CursorPage[domain.Rating]{Items: items, NextPageToken: nextToken}, nil
}

func (r *RatingRepository) summarize(ctx context.Context, scope pfirestore.QueryBuilder) (domain.RatingSummary, error) {
	if r == nil || r.base == nil {
		return domain.RatingSummary{}, errors.New("rating repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return scope(q)
	})
	if err != nil {
		return domain.RatingSummary{}, err
	}

	summary := domain.RatingSummary{Count: len(docs)}
	if summary.Count == 0 {
		return summary, nil
	}
	total := 0
	for _, doc := range docs {
		total += doc.Data.Score
	}
	summary.Average = float64(total) / float64(summary.Count)
	return summary, nil
}

// ratingSlotID derives the uniqueness key for a rating. One slot exists per
// (giver, kind, order) or per (giver, trade).
func ratingSlotID(rating domain.Rating) (string, error) {
	giverID := strings.TrimSpace(rating.GiverID)
	orderID := strings.TrimSpace(rating.OrderID)
	tradeID := strings.TrimSpace(rating.TradeID)
	if giverID == "" {
		return "", errors.New("rating repository: giver id is required")
	}
	switch {
	case orderID != "":
		return fmt.Sprintf("%s|%s|order|%s", giverID, rating.Kind, orderID), nil
	case tradeID != "":
		return fmt.Sprintf("%s|trade|%s", giverID, tradeID), nil
	default:
		return "", errors.New("rating repository: order id or trade id is required")
	}
}

type ratingDocument struct {
	Kind       string    `firestore:"kind"`
	GiverID    string    `firestore:"giverId"`
	ReceiverID string    `firestore:"receiverId"`
	ProductID  string    `firestore:"productId,omitempty"`
	OrderID    string    `firestore:"orderId,omitempty"`
	TradeID    string    `firestore:"tradeId,omitempty"`
	Score      int       `firestore:"score"`
	Comment    string    `firestore:"comment,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type ratingSlotDocument struct {
	RatingID  string    `firestore:"ratingId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func encodeRatingDocument(rating domain.Rating) ratingDocument {
	return ratingDocument{
		Kind:       string(rating.Kind),
		GiverID:    strings.TrimSpace(rating.GiverID),
		ReceiverID: strings.TrimSpace(rating.ReceiverID),
		ProductID:  strings.TrimSpace(rating.ProductID),
		OrderID:    strings.TrimSpace(rating.OrderID),
		TradeID:    strings.TrimSpace(rating.TradeID),
		Score:      rating.Score,
		Comment:    rating.Comment,
		CreatedAt:  rating.CreatedAt.UTC(),
	}
}

func decodeRatingDocument(id string, doc ratingDocument, createdAt time.Time) domain.Rating {
	return domain.Rating{
		ID:         strings.TrimSpace(id),
		Kind:       domain.RatingKind(strings.TrimSpace(doc.Kind)),
		GiverID:    strings.TrimSpace(doc.GiverID),
		ReceiverID: strings.TrimSpace(doc.ReceiverID),
		ProductID:  strings.TrimSpace(doc.ProductID),
		OrderID:    strings.TrimSpace(doc.OrderID),
		TradeID:    strings.TrimSpace(doc.TradeID),
		Score:      doc.Score,
		Comment:    doc.Comment,
		CreatedAt:  chooseTime(doc.CreatedAt, createdAt),
	}
}
