package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/repositories"
)

const ratingIDPrefix = "rat_"

// Orders become ratable once the goods arrive; waiting for the buyer's
// confirmation is not required.
var ratableOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusDelivered,
	domain.OrderStatusCompleted,
}

func orderRatable(status domain.OrderStatus) bool {
	return slices.Contains(ratableOrderStatuses, status)
}

var (
	// ErrRatingInvalidInput indicates validation failures for rating operations.
	ErrRatingInvalidInput = errors.New("rating: invalid input")
	// ErrRatingNotFound indicates the rated order, trade, or rating is missing.
	ErrRatingNotFound = errors.New("rating: not found")
	// ErrRatingUnauthorized indicates the giver is not a party to the rated
	// order or trade.
	ErrRatingUnauthorized = errors.New("rating: unauthorized")
	// ErrRatingConflict signals a duplicate submission for the same
	// (giver, order) or (giver, trade) pair.
	ErrRatingConflict = errors.New("rating: conflict")
	// ErrRatingInvalidState is returned when the order or trade has not
	// finished successfully yet.
	ErrRatingInvalidState = errors.New("rating: invalid state")
)

// RatingServiceDeps bundles collaborators required to construct a RatingService.
type RatingServiceDeps struct {
	Ratings          repositories.RatingRepository
	Orders           repositories.OrderRepository
	Trades           repositories.TradeRepository
	Clock            func() time.Time
	IDGenerator      func() string
	Sanitizer        func(string) string
	ProfanityChecker func(string) bool
	Cache            ProductCache
	Notifier         NotificationSender
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type ratingService struct {
	ratings   repositories.RatingRepository
	orders    repositories.OrderRepository
	trades    repositories.TradeRepository
	clock     func() time.Time
	newID     func() string
	sanitize  func(string) string
	isProfane func(string) bool
	cache     ProductCache
	notifier  NotificationSender
	logger    func(context.Context, string, map[string]any)
}

// NewRatingService wires dependencies into a concrete RatingService implementation.
func NewRatingService(deps RatingServiceDeps) (RatingService, error) {
	if deps.Ratings == nil {
		return nil, errors.New("rating service: rating repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("rating service: order repository is required")
	}
	if deps.Trades == nil {
		return nil, errors.New("rating service: trade repository is required")
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
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizeRatingText
	}
	profanity := deps.ProfanityChecker
	if profanity == nil {
		profanity = basicProfanityChecker
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &ratingService{
		ratings: deps.Ratings,
		orders:  deps.Orders,
		trades:  deps.Trades,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitize:  sanitize,
		isProfane: profanity,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		logger:    logger,
	}, nil
}

func (s *ratingService) CreateUserRating(ctx context.Context, cmd CreateUserRatingCommand) (Rating, error) {
	giverID := strings.TrimSpace(cmd.GiverID)
	orderID := strings.TrimSpace(cmd.OrderID)
	tradeID := strings.TrimSpace(cmd.TradeID)

	if giverID == "" {
		return Rating{}, fmt.Errorf("%w: giver id is required", ErrRatingInvalidInput)
	}
	if (orderID == "") == (tradeID == "") {
		return Rating{}, fmt.Errorf("%w: exactly one of order id or trade id is required", ErrRatingInvalidInput)
	}

	comment, err := s.validateScoreAndComment(cmd.Score, cmd.Comment)
	if err != nil {
		return Rating{}, err
	}

	var receiverID string
	if orderID != "" {
		receiverID, err = s.checkOrderContext(ctx, orderID, giverID)
	} else {
		receiverID, err = s.checkTradeContext(ctx, tradeID, giverID)
	}
	if err != nil {
		return Rating{}, err
	}
	if explicit := strings.TrimSpace(cmd.ReceiverID); explicit != "" && explicit != receiverID {
		return Rating{}, fmt.Errorf("%w: receiver %q is not the counterparty", ErrRatingInvalidInput, explicit)
	}

	if err := s.ensureNoExistingRating(ctx, giverID, orderID, tradeID, domain.RatingKindUser); err != nil {
		return Rating{}, err
	}

	rating := Rating{
		ID:         ratingIDPrefix + s.newID(),
		Kind:       domain.RatingKindUser,
		GiverID:    giverID,
		ReceiverID: receiverID,
		OrderID:    orderID,
		TradeID:    tradeID,
		Score:      cmd.Score,
		Comment:    comment,
		CreatedAt:  s.now(),
	}

	created, err := s.ratings.Insert(ctx, rating)
	if err != nil {
		return Rating{}, s.mapRepositoryError(err)
	}

	s.invalidateSeller(ctx, receiverID)
	s.notify(ctx, receiverID, "rating_received", map[string]string{
		"ratingId": created.ID,
		"score":    fmt.Sprintf("%d", created.Score),
	})

	return created, nil
}

func (s *ratingService) CreateProductRating(ctx context.Context, cmd CreateProductRatingCommand) (Rating, error) {
	giverID := strings.TrimSpace(cmd.GiverID)
	productID := strings.TrimSpace(cmd.ProductID)
	orderID := strings.TrimSpace(cmd.OrderID)

	if giverID == "" {
		return Rating{}, fmt.Errorf("%w: giver id is required", ErrRatingInvalidInput)
	}
	if productID == "" {
		return Rating{}, fmt.Errorf("%w: product id is required", ErrRatingInvalidInput)
	}
	if orderID == "" {
		return Rating{}, fmt.Errorf("%w: order id is required", ErrRatingInvalidInput)
	}

	comment, err := s.validateScoreAndComment(cmd.Score, cmd.Comment)
	if err != nil {
		return Rating{}, err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Rating{}, s.mapRepositoryError(err)
	}
	if order.BuyerID != giverID {
		return Rating{}, fmt.Errorf("%w: only the buyer may rate the product", ErrRatingUnauthorized)
	}
	if order.ProductID != productID {
		return Rating{}, fmt.Errorf("%w: product %q was not sold on order %q", ErrRatingInvalidInput, productID, orderID)
	}
	if !orderRatable(order.Status) {
		return Rating{}, fmt.Errorf("%w: order %q is %s, ratings require delivered or completed", ErrRatingInvalidState, orderID, order.Status)
	}

	if err := s.ensureNoExistingRating(ctx, giverID, orderID, "", domain.RatingKindProduct); err != nil {
		return Rating{}, err
	}

	rating := Rating{
		ID:         ratingIDPrefix + s.newID(),
		Kind:       domain.RatingKindProduct,
		GiverID:    giverID,
		ReceiverID: order.SellerID,
		ProductID:  productID,
		OrderID:    orderID,
		Score:      cmd.Score,
		Comment:    comment,
		CreatedAt:  s.now(),
	}

	created, err := s.ratings.Insert(ctx, rating)
	if err != nil {
		return Rating{}, s.mapRepositoryError(err)
	}

	s.invalidateProduct(ctx, productID)
	s.notify(ctx, order.SellerID, "rating_received", map[string]string{
		"ratingId":  created.ID,
		"productId": productID,
		"score":     fmt.Sprintf("%d", created.Score),
	})

	return created, nil
}

func (s *ratingService) ListUserRatings(ctx context.Context, cmd ListRatingsCommand) (RatingPage, error) {
	subjectID := strings.TrimSpace(cmd.SubjectID)
	if subjectID == "" {
		return RatingPage{}, fmt.Errorf("%w: user id is required", ErrRatingInvalidInput)
	}
	page, err := s.ratings.ListByReceiver(ctx, subjectID, cmd.Pagination)
	if err != nil {
		return RatingPage{}, s.mapRepositoryError(err)
	}
	summary, err := s.ratings.SummarizeReceiver(ctx, subjectID)
	if err != nil {
		return RatingPage{}, s.mapRepositoryError(err)
	}
	return RatingPage{Page: page, Summary: summary}, nil
}

func (s *ratingService) ListProductRatings(ctx context.Context, cmd ListRatingsCommand) (RatingPage, error) {
	subjectID := strings.TrimSpace(cmd.SubjectID)
	if subjectID == "" {
		return RatingPage{}, fmt.Errorf("%w: product id is required", ErrRatingInvalidInput)
	}
	page, err := s.ratings.ListByProduct(ctx, subjectID, cmd.Pagination)
	if err != nil {
		return RatingPage{}, s.mapRepositoryError(err)
	}
	summary, err := s.ratings.SummarizeProduct(ctx, subjectID)
	if err != nil {
		return RatingPage{}, s.mapRepositoryError(err)
	}
	return RatingPage{Page: page, Summary: summary}, nil
}

// checkOrderContext verifies the giver is a party of a delivered or completed
// order and returns the counterparty to be rated.
func (s *ratingService) checkOrderContext(ctx context.Context, orderID, giverID string) (string, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	if order.BuyerID != giverID && order.SellerID != giverID {
		return "", fmt.Errorf("%w: user %q is not a party to order %q", ErrRatingUnauthorized, giverID, orderID)
	}
	if !orderRatable(order.Status) {
		return "", fmt.Errorf("%w: order %q is %s, ratings require delivered or completed", ErrRatingInvalidState, orderID, order.Status)
	}
	if order.BuyerID == giverID {
		return order.SellerID, nil
	}
	return order.BuyerID, nil
}

func (s *ratingService) checkTradeContext(ctx context.Context, tradeID, giverID string) (string, error) {
	trade, err := s.trades.FindByID(ctx, tradeID)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	if !trade.IsParty(giverID) {
		return "", fmt.Errorf("%w: user %q is not a party to trade %q", ErrRatingUnauthorized, giverID, tradeID)
	}
	if trade.Status != domain.TradeStatusCompleted {
		return "", fmt.Errorf("%w: trade %q is %s, ratings require completed", ErrRatingInvalidState, tradeID, trade.Status)
	}
	return trade.Counterparty(giverID), nil
}

func (s *ratingService) validateScoreAndComment(score int, rawComment string) (string, error) {
	if score < 1 || score > 5 {
		return "", fmt.Errorf("%w: score must be between 1 and 5", ErrRatingInvalidInput)
	}
	comment := s.sanitize(rawComment)
	if comment != "" && s.isProfane(comment) {
		return "", fmt.Errorf("%w: comment contains profanity", ErrRatingInvalidInput)
	}
	return comment, nil
}

func (s *ratingService) ensureNoExistingRating(ctx context.Context, giverID, orderID, tradeID string, kind domain.RatingKind) error {
	var err error
	if orderID != "" {
		_, err = s.ratings.FindByGiverAndOrder(ctx, giverID, orderID, kind)
	} else {
		_, err = s.ratings.FindByGiverAndTrade(ctx, giverID, tradeID)
	}
	if err == nil {
		return fmt.Errorf("%w: rating already submitted", ErrRatingConflict)
	}
	if isRepoNotFound(err) {
		return nil
	}
	return s.mapRepositoryError(err)
}

// invalidateSeller drops cached seller aggregates; failures are logged only.
func (s *ratingService) invalidateSeller(ctx context.Context, sellerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSeller(ctx, sellerID); err != nil {
		s.logger(ctx, "rating.cache.invalidate.failed", map[string]any{
			"seller": sellerID,
			"error":  err.Error(),
		})
	}
}

func (s *ratingService) invalidateProduct(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, productID); err != nil {
		s.logger(ctx, "rating.cache.invalidate.failed", map[string]any{
			"product": productID,
			"error":   err.Error(),
		})
	}
}

func (s *ratingService) notify(ctx context.Context, userID, notifType string, data map[string]string) {
	if s.notifier == nil || userID == "" {
		return
	}
	if _, err := s.notifier.Send(ctx, SendNotificationCommand{
		UserID:   userID,
		Type:     notifType,
		Channels: []domain.NotificationChannel{domain.ChannelInApp},
		Data:     data,
	}); err != nil {
		s.logger(ctx, "rating.notify.failed", map[string]any{
			"user":  userID,
			"type":  notifType,
			"error": err.Error(),
		})
	}
}

func (s *ratingService) now() time.Time {
	return s.clock()
}

func (s *ratingService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrRatingNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrRatingConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("rating: repository unavailable: %w", err)
		}
	}
	return err
}

var defaultProfanityTerms = map[string]struct{}{
	"ass":     {},
	"asshole": {},
	"bastard": {},
	"bitch":   {},
	"bloody":  {},
	"damn":    {},
	"fuck":    {},
	"fucker":  {},
	"fucking": {},
	"shit":    {},
	"shitty":  {},
	"slut":    {},
	"whore":   {},
}

func basicProfanityChecker(input string) bool {
	if input == "" {
		return false
	}

	normalized := strings.ToLower(input)
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r))
	})

	for _, word := range words {
		if _, ok := defaultProfanityTerms[word]; ok {
			return true
		}
	}
	return false
}

// sanitizeRatingText trims whitespace, strips unsafe control characters, and normalises spacing while
// preserving intentional newlines for readability.
func sanitizeRatingText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\n' {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	result := strings.Join(lines, "\n")
	return strings.TrimSpace(result)
}
