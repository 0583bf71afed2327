package domain

import (
	"time"
)

// TradeStatus enumerates valid lifecycle states for item-for-item trades.
type TradeStatus string

const (
	// TradeStatusPending indicates the proposal awaits the receiver's decision.
	TradeStatusPending TradeStatus = "pending"
	// TradeStatusAccepted indicates the receiver accepted and both sides owe a shipment.
	TradeStatusAccepted TradeStatus = "accepted"
	// TradeStatusRejected indicates the receiver declined the proposal.
	TradeStatusRejected TradeStatus = "rejected"
	// TradeStatusCountered indicates the receiver answered with a counter proposal.
	TradeStatusCountered TradeStatus = "countered"
	// TradeStatusShipped indicates both sides have handed their items to a carrier.
	TradeStatusShipped TradeStatus = "shipped"
	// TradeStatusCompleted indicates both parties confirmed receipt (or auto-confirm fired).
	TradeStatusCompleted TradeStatus = "completed"
	// TradeStatusCancelled indicates the initiator withdrew the pending proposal
	// or an admin cancelled it while resolving a dispute.
	TradeStatusCancelled TradeStatus = "cancelled"
	// TradeStatusDisputed indicates a party escalated and an admin must resolve.
	TradeStatusDisputed TradeStatus = "disputed"
)

// TradeSide identifies which party of a trade an item or shipment belongs to.
type TradeSide string

const (
	// TradeSideInitiator marks the proposing party's side.
	TradeSideInitiator TradeSide = "initiator"
	// TradeSideReceiver marks the responding party's side.
	TradeSideReceiver TradeSide = "receiver"
)

// TradeItem references a product offered on one side of a trade.
// Item sets are immutable once the trade leaves pending.
type TradeItem struct {
	ProductID string
	Title     string
	Side      TradeSide
}

// Trade is a proposed or executed item-for-item exchange between two users,
// optionally with a cash adjustment paid by the initiator (negative amounts
// mean the receiver pays).
type Trade struct {
	ID                 string
	InitiatorID        string
	ReceiverID         string
	Status             TradeStatus
	InitiatorItems     []TradeItem
	ReceiverItems      []TradeItem
	CashAdjustment     *Money
	Message            string
	CounterOfID        *string
	InitiatorShipped   bool
	ReceiverShipped    bool
	InitiatorConfirmed bool
	ReceiverConfirmed  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	AcceptedAt         *time.Time
	ShippedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	DisputedAt         *time.Time
}

// IsParty reports whether userID is the initiator or receiver of the trade.
func (t Trade) IsParty(userID string) bool {
	return userID != "" && (userID == t.InitiatorID || userID == t.ReceiverID)
}

// Counterparty returns the other party of the trade relative to userID.
func (t Trade) Counterparty(userID string) string {
	switch userID {
	case t.InitiatorID:
		return t.ReceiverID
	case t.ReceiverID:
		return t.InitiatorID
	default:
		return ""
	}
}

// SideOf returns which side of the trade userID is on.
func (t Trade) SideOf(userID string) (TradeSide, bool) {
	switch userID {
	case t.InitiatorID:
		return TradeSideInitiator, true
	case t.ReceiverID:
		return TradeSideReceiver, true
	default:
		return "", false
	}
}

// DisputeResolution enumerates the fixed outcomes an admin may choose.
type DisputeResolution string

const (
	// DisputeResolutionCompleteTrade completes the trade as-is.
	DisputeResolutionCompleteTrade DisputeResolution = "complete_trade"
	// DisputeResolutionCancel cancels the trade.
	DisputeResolutionCancel DisputeResolution = "cancel"
	// DisputeResolutionFavorInitiator records a ruling for the initiator.
	// Item/fund disposition for favor outcomes is undefined pending product
	// clarification; the trade completes and the ruling is recorded only.
	DisputeResolutionFavorInitiator DisputeResolution = "favor_initiator"
	// DisputeResolutionFavorReceiver records a ruling for the receiver.
	DisputeResolutionFavorReceiver DisputeResolution = "favor_receiver"
)

// Valid reports whether r is one of the four fixed resolution outcomes.
func (r DisputeResolution) Valid() bool {
	switch r {
	case DisputeResolutionCompleteTrade, DisputeResolutionCancel,
		DisputeResolutionFavorInitiator, DisputeResolutionFavorReceiver:
		return true
	}
	return false
}

// Dispute is the escalation record attached to a trade. At most one exists
// per trade; it is annotated on resolution, never deleted.
type Dispute struct {
	ID          string
	TradeID     string
	RaisedBy    string
	Reason      string
	Description string
	Resolution  *DisputeResolution
	AdminNote   string
	ResolvedBy  string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Resolved reports whether the dispute has been ruled on.
func (d Dispute) Resolved() bool {
	return d.Resolution != nil
}

// ShipmentStatus enumerates carrier states tracked per shipment.
type ShipmentStatus string

const (
	// ShipmentStatusPreparing indicates the label exists but the parcel has not moved.
	ShipmentStatusPreparing ShipmentStatus = "preparing"
	// ShipmentStatusInTransit indicates the carrier has the parcel.
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	// ShipmentStatusDelivered indicates the carrier reports delivery.
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

// Shipment records a carrier handoff for one side of a trade or for an order.
type Shipment struct {
	ID             string
	TradeID        string
	OrderID        string
	Side           TradeSide
	Carrier        string
	TrackingNumber string
	Status         ShipmentStatus
	ShippedAt      time.Time
	DeliveredAt    *time.Time
}
