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

const (
	disputesCollection     = "disputes"
	disputeSlotsCollection = "disputeSlots"
)

// DisputeRepository stores the zero-or-one escalation record per trade.
// Uniqueness is enforced with a slot document keyed by trade ID and created
// together with the dispute, so concurrent raises cannot double-file.
type DisputeRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[disputeDocument]
}

// NewDisputeRepository constructs a Firestore-backed dispute repository.
func NewDisputeRepository(provider *pfirestore.Provider) (*DisputeRepository, error) {
	if provider == nil {
		return nil, errors.New("dispute repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[disputeDocument](provider, disputesCollection, nil, nil)
	return &DisputeRepository{provider: provider, base: base}, nil
}

// Insert stores a new dispute document and claims the trade's slot atomically.
// It returns a conflict error when the trade already has a dispute. When the
// context carries an active transaction both creates are buffered on it.
func (r *DisputeRepository) Insert(ctx context.Context, dispute domain.Dispute) error {
	if r == nil || r.base == nil {
		return errors.New("dispute repository not initialised")
	}
	disputeID := strings.TrimSpace(dispute.ID)
	if disputeID == "" {
		return errors.New("dispute repository: dispute id is required")
	}
	tradeID := strings.TrimSpace(dispute.TradeID)
	if tradeID == "" {
		return errors.New("dispute repository: trade id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	disputeRef := client.Collection(disputesCollection).Doc(disputeID)
	slotRef := client.Collection(disputeSlotsCollection).Doc(tradeID)

	create := func(tx *firestore.Transaction) error {
		if err := tx.Create(slotRef, disputeSlotDocument{
			DisputeID: disputeID,
			CreatedAt: dispute.CreatedAt.UTC(),
		}); err != nil {
			return err
		}
		return tx.Create(disputeRef, encodeDisputeDocument(dispute))
	}

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := create(tx); err != nil {
			return pfirestore.WrapError("disputes.insert", err)
		}
		return nil
	}

	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		return create(tx)
	})
	if err != nil {
		return pfirestore.WrapError("disputes.insert", err)
	}
	return nil
}

// Update overwrites the dispute document, typically to annotate a resolution.
func (r *DisputeRepository) Update(ctx context.Context, dispute domain.Dispute) error {
	if r == nil || r.base == nil {
		return errors.New("dispute repository not initialised")
	}
	disputeID := strings.TrimSpace(dispute.ID)
	if disputeID == "" {
		return errors.New("dispute repository: dispute id is required")
	}
	if _, err := r.base.Set(ctx, disputeID, encodeDisputeDocument(dispute)); err != nil {
		return err
	}
	return nil
}

// FindByTrade returns the dispute attached to the trade, or a not-found error.
func (r *DisputeRepository) FindByTrade(ctx context.Context, tradeID string) (domain.Dispute, error) {
	if r == nil || r.base == nil {
		return domain.Dispute{}, errors.New("dispute repository not initialised")
	}
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return domain.Dispute{}, errors.New("dispute repository: trade id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("tradeId", "==", tradeID).Limit(1)
	})
	if err != nil {
		return domain.Dispute{}, err
	}
	if len(docs) == 0 {
		return domain.Dispute{}, pfirestore.WrapError("disputes.findByTrade", status.Error(codes.NotFound, "dispute not found"))
	}
	return decodeDisputeDocument(docs[0].ID, docs[0].Data, docs[0].CreateTime), nil
}

type disputeSlotDocument struct {
	DisputeID string    `firestore:"disputeId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type disputeDocument struct {
	TradeID     string     `firestore:"tradeId"`
	RaisedBy    string     `firestore:"raisedBy"`
	Reason      string     `firestore:"reason"`
	Description string     `firestore:"description,omitempty"`
	Resolution  string     `firestore:"resolution,omitempty"`
	AdminNote   string     `firestore:"adminNote,omitempty"`
	ResolvedBy  string     `firestore:"resolvedBy,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	ResolvedAt  *time.Time `firestore:"resolvedAt,omitempty"`
}

func encodeDisputeDocument(dispute domain.Dispute) disputeDocument {
	resolution := ""
	if dispute.Resolution != nil {
		resolution = string(*dispute.Resolution)
	}
	return disputeDocument{
		TradeID:     strings.TrimSpace(dispute.TradeID),
		RaisedBy:    strings.TrimSpace(dispute.RaisedBy),
		Reason:      strings.TrimSpace(dispute.Reason),
		Description: strings.TrimSpace(dispute.Description),
		Resolution:  resolution,
		AdminNote:   strings.TrimSpace(dispute.AdminNote),
		ResolvedBy:  strings.TrimSpace(dispute.ResolvedBy),
		CreatedAt:   dispute.CreatedAt.UTC(),
		ResolvedAt:  normalizeTimePointer(dispute.ResolvedAt),
	}
}

func decodeDisputeDocument(id string, doc disputeDocument, createdAt time.Time) domain.Dispute {
	var resolution *domain.DisputeResolution
	if trimmed := strings.TrimSpace(doc.Resolution); trimmed != "" {
		value := domain.DisputeResolution(trimmed)
		resolution = &value
	}
	return domain.Dispute{
		ID:          strings.TrimSpace(id),
		TradeID:     strings.TrimSpace(doc.TradeID),
		RaisedBy:    strings.TrimSpace(doc.RaisedBy),
		Reason:      doc.Reason,
		Description: doc.Description,
		Resolution:  resolution,
		AdminNote:   doc.AdminNote,
		ResolvedBy:  strings.TrimSpace(doc.ResolvedBy),
		CreatedAt:   chooseTime(doc.CreatedAt, createdAt),
		ResolvedAt:  normalizeTimePointer(doc.ResolvedAt),
	}
}
