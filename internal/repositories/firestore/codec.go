package firestore

import (
	"errors"
	"strings"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/platform/pagination"
)

// moneyDocument stores an amount in minor units with its currency code.
type moneyDocument struct {
	Amount   int64  `firestore:"amount"`
	Currency string `firestore:"currency"`
}

func encodeMoney(m domain.Money) moneyDocument {
	return moneyDocument{
		Amount:   m.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(m.Currency)),
	}
}

func decodeMoney(doc moneyDocument) domain.Money {
	return domain.Money{
		Amount:   doc.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(doc.Currency)),
	}
}

func encodeMoneyPointer(m *domain.Money) *moneyDocument {
	if m == nil {
		return nil
	}
	doc := encodeMoney(*m)
	return &doc
}

func decodeMoneyPointer(doc *moneyDocument) *domain.Money {
	if doc == nil {
		return nil
	}
	m := decodeMoney(*doc)
	return &m
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func normalizeStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// normaliseStatusFilters lower-cases, trims, and dedupes status filter values.
func normaliseStatusFilters(statuses []string) []string {
	if len(statuses) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(statuses))
	seen := make(map[string]struct{})
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(status))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	// Firestore in clause supports up to 10 values.
	if len(normalized) > 10 {
		normalized = normalized[:10]
	}
	return normalized
}

// List cursors encode the last document's sort timestamp and ID.

func encodeTimeCursor(ts time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{ts.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeTimeCursor(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}

// pageWindow resolves the effective limit and over-fetch size for cursor pages.
func pageWindow(pager domain.Pagination) (limit, fetchLimit int) {
	limit = pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit = limit
	if limit > 0 {
		fetchLimit = limit + 1
	}
	return limit, fetchLimit
}
