package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/platform/pagination"
	"github.com/tarodan/api/internal/services"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = 64 * 1024
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be RFC3339 timestamp")
}

// parsePagination reads page_size and page_token query parameters, clamping the
// size between 1 and max with def as the fallback.
func parsePagination(query url.Values, def, max int) (services.Pagination, error) {
	params, err := pagination.Parse(query, pagination.Options{
		DefaultPageSize: def,
		MaxPageSize:     max,
	})
	if err != nil {
		return services.Pagination{}, errors.New("page_size must be an integer")
	}
	return services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}, nil
}

type moneyPayload struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func buildMoneyPayload(money domain.Money) moneyPayload {
	return moneyPayload{
		Amount:   money.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(money.Currency)),
	}
}

type moneyRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m *moneyRequest) toDomain() *domain.Money {
	if m == nil {
		return nil
	}
	return &domain.Money{
		Amount:   m.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(m.Currency)),
	}
}

type shipmentPayload struct {
	ID             string `json:"id"`
	Side           string `json:"side,omitempty"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Status         string `json:"status"`
	ShippedAt      string `json:"shipped_at"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
}

func buildShipmentPayload(shipment domain.Shipment) shipmentPayload {
	return shipmentPayload{
		ID:             strings.TrimSpace(shipment.ID),
		Side:           strings.TrimSpace(string(shipment.Side)),
		Carrier:        strings.TrimSpace(shipment.Carrier),
		TrackingNumber: strings.TrimSpace(shipment.TrackingNumber),
		Status:         strings.TrimSpace(string(shipment.Status)),
		ShippedAt:      formatTime(shipment.ShippedAt),
		DeliveredAt:    formatTime(pointerTime(shipment.DeliveredAt)),
	}
}
