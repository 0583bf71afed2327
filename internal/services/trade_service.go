package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/repositories"
)

const (
	tradeEventCreated         = "trade.created"
	tradeEventStatusChanged   = "trade.status.changed"
	tradeEventDisputeRaised   = "trade.dispute.raised"
	tradeEventDisputeResolved = "trade.dispute.resolved"

	tradeIDPrefix    = "trd_"
	disputeIDPrefix  = "dsp_"
	shipmentIDPrefix = "shp_"

	maxTradeItemsPerSide = 10
	maxDisputeReasonLen  = 500
)

var (
	// ErrTradeInvalidInput signals the caller provided invalid data.
	ErrTradeInvalidInput = errors.New("trade: invalid input")
	// ErrTradeNotFound indicates the trade could not be located.
	ErrTradeNotFound = errors.New("trade: not found")
	// ErrTradeUnauthorized indicates the actor is not a party to the trade
	// (or lacks the admin role for resolution).
	ErrTradeUnauthorized = errors.New("trade: unauthorized")
	// ErrTradeInvalidState indicates an invalid status transition was attempted.
	ErrTradeInvalidState = errors.New("trade: invalid status transition")
	// ErrTradeConflict indicates duplicate disputes, double shipping, or
	// concurrent modification conflicts.
	ErrTradeConflict = errors.New("trade: conflict")
)

var tradeStateTransitions = map[domain.TradeStatus][]domain.TradeStatus{
	domain.TradeStatusPending: {
		domain.TradeStatusAccepted,
		domain.TradeStatusRejected,
		domain.TradeStatusCountered,
		domain.TradeStatusCancelled,
	},
	domain.TradeStatusAccepted: {
		domain.TradeStatusShipped,
		domain.TradeStatusDisputed,
	},
	domain.TradeStatusShipped: {
		domain.TradeStatusCompleted,
		domain.TradeStatusDisputed,
	},
	domain.TradeStatusDisputed: {
		domain.TradeStatusCompleted,
		domain.TradeStatusCancelled,
	},
}

func canTransitionTrade(current, target domain.TradeStatus) bool {
	if current == target {
		return true
	}
	next, ok := tradeStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// disputableStatuses are the states from which either party may escalate.
var disputableStatuses = []domain.TradeStatus{
	domain.TradeStatusAccepted,
	domain.TradeStatusShipped,
}

// TradeServiceDeps bundles collaborators required to construct the trade service.
type TradeServiceDeps struct {
	Trades      repositories.TradeRepository
	Disputes    repositories.DisputeRepository
	Shipments   repositories.ShipmentRepository
	Products    repositories.ProductRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      TradeEventPublisher
	Notifier    NotificationSender
	Audit       AuditLogService
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type tradeService struct {
	trades     repositories.TradeRepository
	disputes   repositories.DisputeRepository
	shipments  repositories.ShipmentRepository
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     TradeEventPublisher
	notifier   NotificationSender
	audit      AuditLogService
	logger     func(context.Context, string, map[string]any)
}

// NewTradeService wires dependencies into a concrete TradeService implementation.
func NewTradeService(deps TradeServiceDeps) (TradeService, error) {
	if deps.Trades == nil {
		return nil, errors.New("trade service: trade repository is required")
	}
	if deps.Disputes == nil {
		return nil, errors.New("trade service: dispute repository is required")
	}
	if deps.Shipments == nil {
		return nil, errors.New("trade service: shipment repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("trade service: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &tradeService{
		trades:     deps.Trades,
		disputes:   deps.Disputes,
		shipments:  deps.Shipments,
		products:   deps.Products,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		logger:   logger,
	}, nil
}

func (s *tradeService) CreateTrade(ctx context.Context, cmd CreateTradeCommand) (Trade, error) {
	initiator := strings.TrimSpace(cmd.InitiatorID)
	receiver := strings.TrimSpace(cmd.ReceiverID)
	if initiator == "" {
		return Trade{}, fmt.Errorf("%w: initiator id is required", ErrTradeInvalidInput)
	}
	if receiver == "" {
		return Trade{}, fmt.Errorf("%w: receiver id is required", ErrTradeInvalidInput)
	}
	if initiator == receiver {
		return Trade{}, fmt.Errorf("%w: cannot trade with yourself", ErrTradeInvalidInput)
	}

	initiatorItems, err := s.buildItems(ctx, cmd.InitiatorProducts, initiator, domain.TradeSideInitiator)
	if err != nil {
		return Trade{}, err
	}
	receiverItems, err := s.buildItems(ctx, cmd.ReceiverProducts, receiver, domain.TradeSideReceiver)
	if err != nil {
		return Trade{}, err
	}

	if cmd.CashAdjustment != nil {
		if strings.TrimSpace(cmd.CashAdjustment.Currency) == "" {
			return Trade{}, fmt.Errorf("%w: cash adjustment currency is required", ErrTradeInvalidInput)
		}
	}

	now := s.now()
	trade := Trade{
		ID:             s.nextTradeID(),
		InitiatorID:    initiator,
		ReceiverID:     receiver,
		Status:         domain.TradeStatusPending,
		InitiatorItems: initiatorItems,
		ReceiverItems:  receiverItems,
		CashAdjustment: cloneMoney(cmd.CashAdjustment),
		Message:        strings.TrimSpace(cmd.Message),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.trades.Insert(txCtx, trade); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	s.publishEvent(ctx, TradeEvent{
		Type:       tradeEventCreated,
		TradeID:    trade.ID,
		ActorID:    initiator,
		Status:     trade.Status,
		OccurredAt: now,
	})
	s.notify(ctx, receiver, "trade_proposed", map[string]string{
		"tradeId": trade.ID,
	})

	return trade, nil
}

func (s *tradeService) GetTrade(ctx context.Context, cmd GetTradeCommand) (TradeDetail, error) {
	trade, err := s.loadTrade(ctx, cmd.TradeID)
	if err != nil {
		return TradeDetail{}, err
	}
	if !cmd.AsAdmin && !trade.IsParty(strings.TrimSpace(cmd.UserID)) {
		return TradeDetail{}, fmt.Errorf("%w: user %q is not a party to trade %q", ErrTradeUnauthorized, cmd.UserID, trade.ID)
	}

	detail := TradeDetail{Trade: trade}

	shipments, err := s.shipments.ListByTrade(ctx, trade.ID)
	if err != nil {
		return TradeDetail{}, s.mapRepositoryError(err)
	}
	detail.Shipments = shipments

	dispute, err := s.disputes.FindByTrade(ctx, trade.ID)
	switch {
	case err == nil:
		detail.Dispute = &dispute
	case isRepoNotFound(err):
	default:
		return TradeDetail{}, s.mapRepositoryError(err)
	}

	return detail, nil
}

func (s *tradeService) ListTrades(ctx context.Context, cmd ListTradesCommand) (domain.CursorPage[Trade], error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.CursorPage[Trade]{}, fmt.Errorf("%w: user id is required", ErrTradeInvalidInput)
	}
	page, err := s.trades.List(ctx, repositories.TradeListFilter{
		PartyID:    userID,
		Status:     cmd.Status,
		Pagination: cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Trade]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *tradeService) AcceptTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error) {
	return s.respond(ctx, cmd, domain.TradeStatusAccepted, roleReceiver, "trade_accepted")
}

func (s *tradeService) RejectTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error) {
	return s.respond(ctx, cmd, domain.TradeStatusRejected, roleReceiver, "trade_rejected")
}

func (s *tradeService) CancelTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error) {
	return s.respond(ctx, cmd, domain.TradeStatusCancelled, roleInitiator, "trade_cancelled")
}

type partyRole int

const (
	roleAny partyRole = iota
	roleInitiator
	roleReceiver
)

func (s *tradeService) respond(ctx context.Context, cmd RespondTradeCommand, target domain.TradeStatus, role partyRole, notifyType string) (Trade, error) {
	trade, err := s.loadTrade(ctx, cmd.TradeID)
	if err != nil {
		return Trade{}, err
	}

	actor := strings.TrimSpace(cmd.UserID)
	if err := s.authorizeParty(trade, actor, role); err != nil {
		return Trade{}, err
	}

	now := s.now()
	prev := trade.Status
	if err := s.applyStatusTransition(&trade, target, now); err != nil {
		return Trade{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.trades.Update(txCtx, trade); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	s.publishEvent(ctx, TradeEvent{
		Type:       tradeEventStatusChanged,
		TradeID:    trade.ID,
		ActorID:    actor,
		Status:     trade.Status,
		OccurredAt: now,
		Metadata:   map[string]string{"previousStatus": string(prev)},
	})
	s.notify(ctx, trade.Counterparty(actor), notifyType, map[string]string{
		"tradeId": trade.ID,
	})

	return trade, nil
}

func (s *tradeService) CounterTrade(ctx context.Context, cmd CounterTradeCommand) (Trade, error) {
	original, err := s.loadTrade(ctx, cmd.TradeID)
	if err != nil {
		return Trade{}, err
	}

	actor := strings.TrimSpace(cmd.UserID)
	if err := s.authorizeParty(original, actor, roleReceiver); err != nil {
		return Trade{}, err
	}

	now := s.now()
	prev := original.Status
	if err := s.applyStatusTransition(&original, domain.TradeStatusCountered, now); err != nil {
		return Trade{}, err
	}

	// The counter proposal reverses roles: the original receiver now proposes.
	counter := Trade{
		ID:          s.nextTradeID(),
		InitiatorID: original.ReceiverID,
		ReceiverID:  original.InitiatorID,
		Status:      domain.TradeStatusPending,
		Message:     strings.TrimSpace(cmd.Message),
		CounterOfID: valuePtr(original.ID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if len(cmd.InitiatorProducts) > 0 || len(cmd.ReceiverProducts) > 0 {
		counter.InitiatorItems, err = s.buildItems(ctx, cmd.InitiatorProducts, counter.InitiatorID, domain.TradeSideInitiator)
		if err != nil {
			return Trade{}, err
		}
		counter.ReceiverItems, err = s.buildItems(ctx, cmd.ReceiverProducts, counter.ReceiverID, domain.TradeSideReceiver)
		if err != nil {
			return Trade{}, err
		}
	} else {
		counter.InitiatorItems = swapItemSides(original.ReceiverItems, domain.TradeSideInitiator)
		counter.ReceiverItems = swapItemSides(original.InitiatorItems, domain.TradeSideReceiver)
	}

	if cmd.CashAdjustment != nil {
		if strings.TrimSpace(cmd.CashAdjustment.Currency) == "" {
			return Trade{}, fmt.Errorf("%w: cash adjustment currency is required", ErrTradeInvalidInput)
		}
		counter.CashAdjustment = cloneMoney(cmd.CashAdjustment)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.trades.Update(txCtx, original); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.trades.Insert(txCtx, counter); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	s.publishEvent(ctx, TradeEvent{
		Type:       tradeEventStatusChanged,
		TradeID:    original.ID,
		ActorID:    actor,
		Status:     original.Status,
		OccurredAt: now,
		Metadata: map[string]string{
			"previousStatus": string(prev),
			"counterTradeId": counter.ID,
		},
	})
	s.notify(ctx, counter.ReceiverID, "trade_countered", map[string]string{
		"tradeId":     counter.ID,
		"counterOfId": original.ID,
	})

	return counter, nil
}

func (s *tradeService) ShipTrade(ctx context.Context, cmd ShipTradeCommand) (Trade, error) {
	actor := strings.TrimSpace(cmd.UserID)
	carrier := strings.TrimSpace(cmd.Carrier)
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	if carrier == "" {
		return Trade{}, fmt.Errorf("%w: carrier is required", ErrTradeInvalidInput)
	}
	if tracking == "" {
		return Trade{}, fmt.Errorf("%w: tracking number is required", ErrTradeInvalidInput)
	}

	// The transaction may retry, so the shipment keeps a stable ID across
	// attempts. The trade is re-read each attempt to keep the shipped flags
	// serialised against the counterparty's shipment.
	shipmentID := shipmentIDPrefix + s.newID()

	var (
		trade       Trade
		prev        domain.TradeStatus
		bothShipped bool
		now         time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		trade, err = s.loadTrade(txCtx, cmd.TradeID)
		if err != nil {
			return err
		}

		side, ok := trade.SideOf(actor)
		if !ok {
			return fmt.Errorf("%w: user %q is not a party to trade %q", ErrTradeUnauthorized, actor, trade.ID)
		}
		if trade.Status != domain.TradeStatusAccepted {
			return fmt.Errorf("%w: trade %q is %s, shipping requires accepted", ErrTradeInvalidState, trade.ID, trade.Status)
		}

		switch side {
		case domain.TradeSideInitiator:
			if trade.InitiatorShipped {
				return fmt.Errorf("%w: initiator already shipped trade %q", ErrTradeConflict, trade.ID)
			}
			trade.InitiatorShipped = true
		case domain.TradeSideReceiver:
			if trade.ReceiverShipped {
				return fmt.Errorf("%w: receiver already shipped trade %q", ErrTradeConflict, trade.ID)
			}
			trade.ReceiverShipped = true
		}

		now = s.now()
		trade.UpdatedAt = now
		prev = trade.Status
		bothShipped = trade.InitiatorShipped && trade.ReceiverShipped
		if bothShipped {
			if err := s.applyStatusTransition(&trade, domain.TradeStatusShipped, now); err != nil {
				return err
			}
		}

		shipment := Shipment{
			ID:             shipmentID,
			TradeID:        trade.ID,
			Side:           side,
			Carrier:        carrier,
			TrackingNumber: tracking,
			Status:         domain.ShipmentStatusInTransit,
			ShippedAt:      now,
		}
		if err := s.shipments.Insert(txCtx, shipment); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.trades.Update(txCtx, trade); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	if bothShipped {
		s.publishEvent(ctx, TradeEvent{
			Type:       tradeEventStatusChanged,
			TradeID:    trade.ID,
			ActorID:    actor,
			Status:     trade.Status,
			OccurredAt: now,
			Metadata:   map[string]string{"previousStatus": string(prev)},
		})
	}
	s.notify(ctx, trade.Counterparty(actor), "trade_shipped", map[string]string{
		"tradeId":        trade.ID,
		"carrier":        carrier,
		"trackingNumber": tracking,
	})

	return trade, nil
}

func (s *tradeService) ConfirmTrade(ctx context.Context, cmd RespondTradeCommand) (Trade, error) {
	actor := strings.TrimSpace(cmd.UserID)

	var (
		trade     Trade
		prev      domain.TradeStatus
		completed bool
		now       time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		trade, err = s.loadTrade(txCtx, cmd.TradeID)
		if err != nil {
			return err
		}

		side, ok := trade.SideOf(actor)
		if !ok {
			return fmt.Errorf("%w: user %q is not a party to trade %q", ErrTradeUnauthorized, actor, trade.ID)
		}
		if trade.Status != domain.TradeStatusShipped {
			return fmt.Errorf("%w: trade %q is %s, confirmation requires shipped", ErrTradeInvalidState, trade.ID, trade.Status)
		}

		switch side {
		case domain.TradeSideInitiator:
			if trade.InitiatorConfirmed {
				return fmt.Errorf("%w: initiator already confirmed trade %q", ErrTradeConflict, trade.ID)
			}
			trade.InitiatorConfirmed = true
		case domain.TradeSideReceiver:
			if trade.ReceiverConfirmed {
				return fmt.Errorf("%w: receiver already confirmed trade %q", ErrTradeConflict, trade.ID)
			}
			trade.ReceiverConfirmed = true
		}

		now = s.now()
		trade.UpdatedAt = now
		prev = trade.Status
		completed = trade.InitiatorConfirmed && trade.ReceiverConfirmed
		if completed {
			if err := s.applyStatusTransition(&trade, domain.TradeStatusCompleted, now); err != nil {
				return err
			}
		}

		if err := s.trades.Update(txCtx, trade); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Trade{}, err
	}

	if completed {
		s.publishEvent(ctx, TradeEvent{
			Type:       tradeEventStatusChanged,
			TradeID:    trade.ID,
			ActorID:    actor,
			Status:     trade.Status,
			OccurredAt: now,
			Metadata:   map[string]string{"previousStatus": string(prev)},
		})
		s.notify(ctx, trade.Counterparty(actor), "trade_completed", map[string]string{
			"tradeId": trade.ID,
		})
	}

	return trade, nil
}

func (s *tradeService) RaiseDispute(ctx context.Context, cmd RaiseDisputeCommand) (Dispute, error) {
	actor := strings.TrimSpace(cmd.UserID)
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Dispute{}, fmt.Errorf("%w: dispute reason is required", ErrTradeInvalidInput)
	}
	if len(reason) > maxDisputeReasonLen {
		return Dispute{}, fmt.Errorf("%w: dispute reason exceeds %d characters", ErrTradeInvalidInput, maxDisputeReasonLen)
	}

	// Stable ID across transaction retries. The existence check runs inside
	// the transaction, where the dispute insert also claims a per-trade slot,
	// so two parties racing to dispute the same trade file exactly one.
	disputeID := disputeIDPrefix + s.newID()

	var (
		trade   Trade
		prev    domain.TradeStatus
		dispute Dispute
		now     time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		trade, err = s.loadTrade(txCtx, cmd.TradeID)
		if err != nil {
			return err
		}

		if !trade.IsParty(actor) {
			return fmt.Errorf("%w: user %q is not a party to trade %q", ErrTradeUnauthorized, actor, trade.ID)
		}
		if !slices.Contains(disputableStatuses, trade.Status) {
			return fmt.Errorf("%w: trade %q is %s, disputes require accepted or shipped", ErrTradeInvalidState, trade.ID, trade.Status)
		}

		if _, err := s.disputes.FindByTrade(txCtx, trade.ID); err == nil {
			return fmt.Errorf("%w: trade %q already has a dispute", ErrTradeConflict, trade.ID)
		} else if !isRepoNotFound(err) {
			return s.mapRepositoryError(err)
		}

		now = s.now()
		prev = trade.Status
		if err := s.applyStatusTransition(&trade, domain.TradeStatusDisputed, now); err != nil {
			return err
		}

		dispute = Dispute{
			ID:          disputeID,
			TradeID:     trade.ID,
			RaisedBy:    actor,
			Reason:      reason,
			Description: strings.TrimSpace(cmd.Description),
			CreatedAt:   now,
		}
		if err := s.disputes.Insert(txCtx, dispute); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.trades.Update(txCtx, trade); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Dispute{}, err
	}

	s.publishEvent(ctx, TradeEvent{
		Type:       tradeEventDisputeRaised,
		TradeID:    trade.ID,
		ActorID:    actor,
		Status:     trade.Status,
		OccurredAt: now,
		Metadata: map[string]string{
			"previousStatus": string(prev),
			"disputeId":      dispute.ID,
		},
	})
	s.notify(ctx, trade.Counterparty(actor), "trade_disputed", map[string]string{
		"tradeId": trade.ID,
		"reason":  reason,
	})

	return dispute, nil
}

func (s *tradeService) ResolveDispute(ctx context.Context, cmd ResolveDisputeCommand) (TradeDetail, error) {
	adminID := strings.TrimSpace(cmd.AdminID)
	if adminID == "" {
		return TradeDetail{}, fmt.Errorf("%w: admin id is required", ErrTradeUnauthorized)
	}
	if !cmd.Resolution.Valid() {
		return TradeDetail{}, fmt.Errorf("%w: unknown resolution %q", ErrTradeInvalidInput, cmd.Resolution)
	}

	// favor_* outcomes carry no defined item/fund disposition; they complete
	// the trade and the ruling is recorded on the dispute.
	target := domain.TradeStatusCompleted
	if cmd.Resolution == domain.DisputeResolutionCancel {
		target = domain.TradeStatusCancelled
	}
	resolution := cmd.Resolution

	var (
		trade   Trade
		dispute Dispute
		prev    domain.TradeStatus
		now     time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		trade, err = s.loadTrade(txCtx, cmd.TradeID)
		if err != nil {
			return err
		}
		if trade.Status != domain.TradeStatusDisputed {
			return fmt.Errorf("%w: trade %q is not in disputed state", ErrTradeInvalidState, trade.ID)
		}

		dispute, err = s.disputes.FindByTrade(txCtx, trade.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if dispute.Resolved() {
			return fmt.Errorf("%w: dispute %q is already resolved", ErrTradeConflict, dispute.ID)
		}

		now = s.now()
		prev = trade.Status
		if err := s.applyStatusTransition(&trade, target, now); err != nil {
			return err
		}

		dispute.Resolution = &resolution
		dispute.AdminNote = strings.TrimSpace(cmd.AdminNote)
		dispute.ResolvedBy = adminID
		dispute.ResolvedAt = &now

		if err := s.disputes.Update(txCtx, dispute); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.trades.Update(txCtx, trade); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return TradeDetail{}, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			AdminID:    adminID,
			Action:     "trade.dispute.resolve",
			EntityType: "trade",
			EntityID:   trade.ID,
			OldValues: map[string]any{
				"status": string(prev),
			},
			NewValues: map[string]any{
				"status":     string(trade.Status),
				"resolution": string(resolution),
			},
			RequestID: cmd.RequestID,
		})
	}

	s.publishEvent(ctx, TradeEvent{
		Type:       tradeEventDisputeResolved,
		TradeID:    trade.ID,
		ActorID:    adminID,
		Status:     trade.Status,
		OccurredAt: now,
		Metadata: map[string]string{
			"previousStatus": string(prev),
			"resolution":     string(resolution),
		},
	})
	for _, party := range []string{trade.InitiatorID, trade.ReceiverID} {
		s.notify(ctx, party, "trade_dispute_resolved", map[string]string{
			"tradeId":    trade.ID,
			"resolution": string(resolution),
		})
	}

	return TradeDetail{Trade: trade, Dispute: &dispute}, nil
}

func (s *tradeService) AutoConfirmTrades(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	trades, err := s.trades.ListAutoConfirmable(ctx, before.UTC(), limit)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	confirmed := 0
	for _, candidate := range trades {
		tradeID := candidate.ID
		var (
			trade Trade
			prev  domain.TradeStatus
			now   time.Time
		)
		// Re-read inside the transaction so a manual confirm or dispute that
		// landed after the listing is not clobbered.
		err := s.runInTx(ctx, func(txCtx context.Context) error {
			var err error
			trade, err = s.loadTrade(txCtx, tradeID)
			if err != nil {
				return err
			}
			if trade.Status != domain.TradeStatusShipped {
				return fmt.Errorf("%w: trade %q is %s", ErrTradeInvalidState, trade.ID, trade.Status)
			}
			now = s.now()
			prev = trade.Status
			trade.InitiatorConfirmed = true
			trade.ReceiverConfirmed = true
			if err := s.applyStatusTransition(&trade, domain.TradeStatusCompleted, now); err != nil {
				return err
			}
			if err := s.trades.Update(txCtx, trade); err != nil {
				return s.mapRepositoryError(err)
			}
			return nil
		})
		if err != nil {
			label := "trade.autoconfirm.failed"
			if errors.Is(err, ErrTradeInvalidState) {
				label = "trade.autoconfirm.skipped"
			}
			s.logger(ctx, label, map[string]any{
				"trade": tradeID,
				"error": err.Error(),
			})
			continue
		}
		confirmed++
		s.publishEvent(ctx, TradeEvent{
			Type:       tradeEventStatusChanged,
			TradeID:    trade.ID,
			Status:     trade.Status,
			OccurredAt: now,
			Metadata: map[string]string{
				"previousStatus": string(prev),
				"autoConfirmed":  "true",
			},
		})
	}
	return confirmed, nil
}

// applyStatusTransition moves the trade to target, stamping per-status
// timestamps, or reports an invalid transition.
func (s *tradeService) applyStatusTransition(trade *Trade, target domain.TradeStatus, now time.Time) error {
	current := trade.Status
	if current == target {
		trade.UpdatedAt = now
		return nil
	}

	if !canTransitionTrade(current, target) {
		return fmt.Errorf("%w: %s -> %s", ErrTradeInvalidState, current, target)
	}

	trade.Status = target
	trade.UpdatedAt = now

	switch target {
	case domain.TradeStatusAccepted:
		trade.AcceptedAt = &now
	case domain.TradeStatusShipped:
		trade.ShippedAt = &now
	case domain.TradeStatusCompleted:
		trade.CompletedAt = &now
	case domain.TradeStatusCancelled:
		trade.CancelledAt = &now
	case domain.TradeStatusDisputed:
		trade.DisputedAt = &now
	}

	return nil
}

func (s *tradeService) authorizeParty(trade Trade, actor string, role partyRole) error {
	if actor == "" || !trade.IsParty(actor) {
		return fmt.Errorf("%w: user %q is not a party to trade %q", ErrTradeUnauthorized, actor, trade.ID)
	}
	switch role {
	case roleInitiator:
		if actor != trade.InitiatorID {
			return fmt.Errorf("%w: only the initiator may perform this action on trade %q", ErrTradeUnauthorized, trade.ID)
		}
	case roleReceiver:
		if actor != trade.ReceiverID {
			return fmt.Errorf("%w: only the receiver may perform this action on trade %q", ErrTradeUnauthorized, trade.ID)
		}
	}
	return nil
}

// buildItems resolves product references, verifying ownership for the side.
func (s *tradeService) buildItems(ctx context.Context, productIDs []string, ownerID string, side domain.TradeSide) ([]TradeItem, error) {
	ids := make([]string, 0, len(productIDs))
	seen := make(map[string]bool, len(productIDs))
	for _, raw := range productIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate product %q", ErrTradeInvalidInput, id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s items are required", ErrTradeInvalidInput, side)
	}
	if len(ids) > maxTradeItemsPerSide {
		return nil, fmt.Errorf("%w: at most %d items per side", ErrTradeInvalidInput, maxTradeItemsPerSide)
	}

	products, err := s.products.FindMany(ctx, ids)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	items := make([]TradeItem, 0, len(ids))
	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			return nil, fmt.Errorf("%w: product %q not found", ErrTradeNotFound, id)
		}
		if product.SellerID != ownerID {
			return nil, fmt.Errorf("%w: product %q does not belong to the %s", ErrTradeUnauthorized, id, side)
		}
		items = append(items, TradeItem{
			ProductID: product.ID,
			Title:     product.Title,
			Side:      side,
		})
	}
	return items, nil
}

func (s *tradeService) loadTrade(ctx context.Context, tradeID string) (Trade, error) {
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return Trade{}, fmt.Errorf("%w: trade id is required", ErrTradeInvalidInput)
	}
	trade, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		return Trade{}, s.mapRepositoryError(err)
	}
	return trade, nil
}

func (s *tradeService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrTradeNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrTradeConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("trade: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *tradeService) publishEvent(ctx context.Context, event TradeEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishTradeEvent(ctx, event); err != nil {
		s.logger(ctx, "trade.event.publish.failed", map[string]any{
			"type":   event.Type,
			"trade":  event.TradeID,
			"status": string(event.Status),
			"error":  err.Error(),
		})
	}
}

// notify sends a best-effort notification; failures are logged, never returned.
func (s *tradeService) notify(ctx context.Context, userID, notifType string, data map[string]string) {
	if s.notifier == nil || userID == "" {
		return
	}
	if _, err := s.notifier.Send(ctx, SendNotificationCommand{
		UserID: userID,
		Type:   notifType,
		Data:   data,
	}); err != nil {
		s.logger(ctx, "trade.notify.failed", map[string]any{
			"user":  userID,
			"type":  notifType,
			"error": err.Error(),
		})
	}
}

func (s *tradeService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *tradeService) now() time.Time {
	return s.clock()
}

func (s *tradeService) nextTradeID() string {
	return tradeIDPrefix + s.newID()
}

func swapItemSides(items []TradeItem, side domain.TradeSide) []TradeItem {
	swapped := make([]TradeItem, len(items))
	for i, item := range items {
		item.Side = side
		swapped[i] = item
	}
	return swapped
}

func cloneMoney(m *Money) *Money {
	if m == nil {
		return nil
	}
	cloned := *m
	return &cloned
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func valuePtr[T any](v T) *T {
	return &v
}
