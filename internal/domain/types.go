package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Money is an amount in minor units with its ISO currency code.
type Money struct {
	Amount   int64
	Currency string
}

// ProductStatus enumerates listing states for marketplace products.
type ProductStatus string

const (
	// ProductStatusActive indicates the listing is live and tradable.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusReserved indicates the listing is held by a pending order or trade.
	ProductStatusReserved ProductStatus = "reserved"
	// ProductStatusSold indicates the listing has been sold or traded away.
	ProductStatusSold ProductStatus = "sold"
	// ProductStatusSuspended indicates the listing was taken down by moderation.
	ProductStatusSuspended ProductStatus = "suspended"
)

// Product captures the listing fields the trade/order/rating flows depend on.
type Product struct {
	ID        string
	SellerID  string
	Title     string
	Status    ProductStatus
	Price     Money
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserProfile mirrors the marketplace profile document used for notification routing.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	PhoneNumber string
	PushToken   string
	Locale      string
	Roles       []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AuditLogEntry is an append-only record of an administrative action.
type AuditLogEntry struct {
	ID         string
	AdminID    string
	Action     string
	EntityType string
	EntityID   string
	OldValues  map[string]any
	NewValues  map[string]any
	RequestID  string
	CreatedAt  time.Time
}

// SystemHealthReport summarises dependency probes for readiness checks.
type SystemHealthReport struct {
	Healthy    bool
	Components map[string]string
	CheckedAt  time.Time
}
