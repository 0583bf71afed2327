package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tarodan/api/internal/domain"
	pfirestore "github.com/tarodan/api/internal/platform/firestore"
)

const productsCollection = "products"

// Firestore "in" clauses accept at most 10 values per query.
const productBatchSize = 10

// ProductRepository exposes the listing fields trade, order and rating flows need.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime), nil
}

// FindMany fetches products in batches keyed by ID. Missing IDs are simply
// absent from the returned map.
func (r *ProductRepository) FindMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	unique := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	products := make(map[string]domain.Product, len(unique))
	for start := 0; start < len(unique); start += productBatchSize {
		end := start + productBatchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where(firestore.DocumentID, "in", batch)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			product := decodeProductDocument(doc.ID, doc.Data, doc.CreateTime, doc.UpdateTime)
			products[product.ID] = product
		}
	}
	return products, nil
}

// UpdateStatus changes a listing's status, typically when an order or trade
// reserves, releases or sells it.
func (r *ProductRepository) UpdateStatus(ctx context.Context, productID string, status domain.ProductStatus, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}

	_, err := r.base.Update(ctx, productID, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

type productDocument struct {
	SellerID  string        `firestore:"sellerId"`
	Title     string        `firestore:"title"`
	Status    string        `firestore:"status"`
	Price     moneyDocument `firestore:"price"`
	CreatedAt time.Time     `firestore:"createdAt"`
	UpdatedAt time.Time     `firestore:"updatedAt"`
}

func decodeProductDocument(id string, doc productDocument, createdAt, updatedAt time.Time) domain.Product {
	return domain.Product{
		ID:        strings.TrimSpace(id),
		SellerID:  strings.TrimSpace(doc.SellerID),
		Title:     doc.Title,
		Status:    domain.ProductStatus(strings.TrimSpace(doc.Status)),
		Price:     decodeMoney(doc.Price),
		CreatedAt: chooseTime(doc.CreatedAt, createdAt),
		UpdatedAt: chooseTime(doc.UpdatedAt, updatedAt),
	}
}
