package domain

import (
	"time"
)

// RatingKind distinguishes user-to-user ratings from product ratings.
type RatingKind string

const (
	// RatingKindUser rates the counterparty of a completed order or trade.
	RatingKindUser RatingKind = "user"
	// RatingKindProduct rates the purchased listing itself.
	RatingKindProduct RatingKind = "product"
)

// Rating is a one-shot score a giver leaves after a successful order or trade.
// At most one rating exists per (giver, order) or (giver, trade) pair.
type Rating struct {
	ID         string
	Kind       RatingKind
	GiverID    string
	ReceiverID string
	ProductID  string
	OrderID    string
	TradeID    string
	Score      int
	Comment    string
	CreatedAt  time.Time
}

// RatingSummary aggregates scores for a user or product.
type RatingSummary struct {
	Count   int
	Average float64
}
