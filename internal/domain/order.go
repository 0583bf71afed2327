package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for marketplace orders.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits payment completion.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid indicates the gateway confirmed payment.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped indicates the seller handed the parcel to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the buyer confirmed receipt (or auto-confirm fired).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCompleted indicates funds were released to the seller.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates a paid order was cancelled and refunded.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order captures a single-listing purchase between buyer and seller.
type Order struct {
	ID          string
	OrderNumber string
	BuyerID     string
	SellerID    string
	ProductID   string
	Total       Money
	Status      OrderStatus
	PaymentID   *string
	ShipmentID  *string
	InvoicePath *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	RefundedAt  *time.Time
}

// PaymentStatus enumerates normalised gateway states stored per payment.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the gateway session awaits the buyer.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSucceeded indicates the gateway captured the funds.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed indicates the gateway reported a terminal failure.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the captured funds were returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment mirrors one gateway payment attempt for an order.
type Payment struct {
	ID         string
	OrderID    string
	Provider   string
	IntentID   string
	SessionID  string
	Status     PaymentStatus
	Amount     Money
	Raw        map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
	CapturedAt *time.Time
	RefundedAt *time.Time
}
