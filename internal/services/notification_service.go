package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/notify"
	"github.com/tarodan/api/internal/platform/textutil"
	"github.com/tarodan/api/internal/repositories"
)

const (
	notificationIDPrefix = "ntf_"
	deliveryIDPrefix     = "dlv_"
)

var (
	// ErrNotificationInvalidInput covers validation failures on dispatch and
	// inbox operations.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification does not exist or
	// belongs to another user.
	ErrNotificationNotFound = errors.New("notification: not found")
)

// NotificationTemplate is a static template resolved by notification type.
// Title and Body carry {{placeholder}} tokens interpolated from the command
// data; DefaultChannels apply when the caller names none.
type NotificationTemplate struct {
	Type            string
	Title           string
	Body            string
	DefaultChannels []domain.NotificationChannel
}

// NotificationServiceDeps bundles collaborators for NewNotificationService.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Deliveries    repositories.DeliveryRepository
	Users         repositories.UserRepository
	Senders       []notify.Sender
	Templates     []NotificationTemplate
	Queue         DeliveryJobPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	notifications repositories.NotificationRepository
	deliveries    repositories.DeliveryRepository
	users         repositories.UserRepository
	senders       map[domain.NotificationChannel]notify.Sender
	templates     map[string]NotificationTemplate
	queue         DeliveryJobPublisher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a NotificationService.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	if deps.Deliveries == nil {
		return nil, errors.New("notification service: delivery repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("notification service: user repository is required")
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

	senders := make(map[domain.NotificationChannel]notify.Sender, len(deps.Senders))
	for _, sender := range deps.Senders {
		if sender == nil {
			continue
		}
		senders[sender.Channel()] = sender
	}

	templateList := deps.Templates
	if templateList == nil {
		templateList = DefaultNotificationTemplates()
	}
	templates := make(map[string]NotificationTemplate, len(templateList))
	for _, tpl := range templateList {
		templates[tpl.Type] = tpl
	}

	return &notificationService{
		notifications: deps.Notifications,
		deliveries:    deps.Deliveries,
		users:         deps.Users,
		senders:       senders,
		templates:     templates,
		queue:         deps.Queue,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Send resolves the template for cmd.Type, renders it from cmd.Data, and
// attempts delivery on each requested channel independently. Each attempt is
// recorded once in the delivery log; there is no retry.
func (s *notificationService) Send(ctx context.Context, cmd SendNotificationCommand) (DispatchResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return DispatchResult{}, fmt.Errorf("%w: user id is required", ErrNotificationInvalidInput)
	}
	notifType := strings.TrimSpace(cmd.Type)
	if notifType == "" {
		return DispatchResult{}, fmt.Errorf("%w: notification type is required", ErrNotificationInvalidInput)
	}
	template, ok := s.templates[notifType]
	if !ok {
		return DispatchResult{}, fmt.Errorf("%w: unknown notification type %q", ErrNotificationInvalidInput, notifType)
	}

	channels := dedupeChannels(cmd.Channels)
	if len(channels) == 0 {
		channels = template.DefaultChannels
	}
	if len(channels) == 0 {
		return DispatchResult{}, fmt.Errorf("%w: no channels requested for type %q", ErrNotificationInvalidInput, notifType)
	}

	data := textutil.NormalizeStringMap(cmd.Data)
	now := s.clock()
	notification := domain.Notification{
		ID:        notificationIDPrefix + s.newID(),
		UserID:    userID,
		Type:      notifType,
		Title:     textutil.Interpolate(template.Title, data),
		Body:      textutil.Interpolate(template.Body, data),
		Data:      data,
		CreatedAt: now,
	}

	recipient, outbound := s.resolveRecipient(ctx, userID, channels)

	result := DispatchResult{NotificationID: notification.ID}
	for _, channel := range channels {
		delivery := domain.NotificationDelivery{
			ID:             deliveryIDPrefix + s.newID(),
			NotificationID: notification.ID,
			UserID:         userID,
			Type:           notifType,
			Channel:        channel,
			Status:         domain.DeliverySent,
			AttemptedAt:    s.clock(),
		}

		if err := s.attempt(ctx, channel, notification, recipient, outbound); err != nil {
			delivery.Status = domain.DeliveryFailed
			delivery.Error = err.Error()
			s.logger(ctx, "notification.delivery.failed", map[string]any{
				"notification": notification.ID,
				"channel":      string(channel),
				"error":        err.Error(),
			})
		}

		s.recordDelivery(ctx, delivery)
		result.Deliveries = append(result.Deliveries, delivery)
	}

	return result, nil
}

// attempt performs one channel delivery. The in-app channel persists the
// notification row; the rest go through the matching sender.
func (s *notificationService) attempt(ctx context.Context, channel domain.NotificationChannel, notification domain.Notification, recipient notify.Recipient, outboundErr error) error {
	if channel == domain.ChannelInApp {
		return s.notifications.Insert(ctx, notification)
	}

	if outboundErr != nil {
		return outboundErr
	}
	sender, ok := s.senders[channel]
	if !ok {
		return fmt.Errorf("no sender configured for channel %s", channel)
	}
	return sender.Send(ctx, notify.Message{
		Type:  notification.Type,
		Title: notification.Title,
		Body:  notification.Body,
		Data:  notification.Data,
		To:    recipient,
	})
}

// resolveRecipient looks the user up once when any outbound channel is
// requested. A lookup failure fails the outbound channels, not the in-app row.
func (s *notificationService) resolveRecipient(ctx context.Context, userID string, channels []domain.NotificationChannel) (notify.Recipient, error) {
	needsLookup := false
	for _, channel := range channels {
		if channel != domain.ChannelInApp {
			needsLookup = true
			break
		}
	}
	if !needsLookup {
		return notify.Recipient{UserID: userID}, nil
	}

	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return notify.Recipient{UserID: userID}, fmt.Errorf("resolve recipient %s: %w", userID, err)
	}
	return notify.Recipient{
		UserID:      profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		PhoneNumber: profile.PhoneNumber,
		PushToken:   profile.PushToken,
	}, nil
}

// recordDelivery appends the log row and mirrors outbound attempts onto the
// queue. Both are best-effort.
func (s *notificationService) recordDelivery(ctx context.Context, delivery domain.NotificationDelivery) {
	if err := s.deliveries.Append(ctx, delivery); err != nil {
		s.logger(ctx, "notification.delivery.log.failed", map[string]any{
			"delivery": delivery.ID,
			"channel":  string(delivery.Channel),
			"error":    err.Error(),
		})
	}
	if s.queue == nil || delivery.Channel == domain.ChannelInApp {
		return
	}
	if err := s.queue.PublishDeliveryJob(ctx, delivery); err != nil {
		s.logger(ctx, "notification.queue.publish.failed", map[string]any{
			"delivery": delivery.ID,
			"error":    err.Error(),
		})
	}
}

func (s *notificationService) ListNotifications(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.CursorPage[Notification]{}, fmt.Errorf("%w: user id is required", ErrNotificationInvalidInput)
	}
	page, err := s.notifications.ListByUser(ctx, userID, repositories.NotificationListFilter{
		UnreadOnly: cmd.UnreadOnly,
		Pagination: cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Notification]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *notificationService) MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error) {
	userID := strings.TrimSpace(cmd.UserID)
	notificationID := strings.TrimSpace(cmd.NotificationID)
	if userID == "" || notificationID == "" {
		return Notification{}, fmt.Errorf("%w: user id and notification id are required", ErrNotificationInvalidInput)
	}
	notification, err := s.notifications.MarkRead(ctx, userID, notificationID, s.clock())
	if err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}
	return notification, nil
}

func (s *notificationService) ListDeliveries(ctx context.Context, filter DeliveryFilter) (domain.CursorPage[NotificationDelivery], error) {
	page, err := s.deliveries.List(ctx, repositories.DeliveryListFilter{
		UserID:     strings.TrimSpace(filter.UserID),
		Channel:    strings.TrimSpace(filter.Channel),
		Status:     strings.TrimSpace(filter.Status),
		DateRange:  filter.DateRange,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[NotificationDelivery]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *notificationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("notification: repository unavailable: %w", err)
		}
	}
	return err
}

func dedupeChannels(channels []domain.NotificationChannel) []domain.NotificationChannel {
	if len(channels) == 0 {
		return nil
	}
	seen := make(map[domain.NotificationChannel]struct{}, len(channels))
	result := make([]domain.NotificationChannel, 0, len(channels))
	for _, channel := range channels {
		if _, ok := seen[channel]; ok {
			continue
		}
		seen[channel] = struct{}{}
		result = append(result, channel)
	}
	return result
}

// DefaultNotificationTemplates returns the static template registry used when
// no override is supplied.
func DefaultNotificationTemplates() []NotificationTemplate {
	inApp := []domain.NotificationChannel{domain.ChannelInApp}
	inAppPush := []domain.NotificationChannel{domain.ChannelInApp, domain.ChannelPush}
	inAppPushEmail := []domain.NotificationChannel{domain.ChannelInApp, domain.ChannelPush, domain.ChannelEmail}

	return []NotificationTemplate{
		{Type: "trade_proposed", Title: "New trade offer", Body: "You received a new trade offer.", DefaultChannels: inAppPush},
		{Type: "trade_accepted", Title: "Trade accepted", Body: "Your trade offer was accepted. Time to ship your items.", DefaultChannels: inAppPush},
		{Type: "trade_rejected", Title: "Trade declined", Body: "Your trade offer was declined.", DefaultChannels: inApp},
		{Type: "trade_cancelled", Title: "Trade cancelled", Body: "The trade offer was withdrawn.", DefaultChannels: inApp},
		{Type: "trade_countered", Title: "Counter offer received", Body: "Your trade offer got a counter proposal.", DefaultChannels: inAppPush},
		{Type: "trade_shipped", Title: "Trade items shipped", Body: "The other collector shipped via {{carrier}} ({{trackingNumber}}).", DefaultChannels: inAppPush},
		{Type: "trade_completed", Title: "Trade completed", Body: "Your trade is complete. Enjoy the new additions!", DefaultChannels: inAppPushEmail},
		{Type: "trade_disputed", Title: "Trade disputed", Body: "A dispute was opened: {{reason}}", DefaultChannels: inAppPushEmail},
		{Type: "trade_dispute_resolved", Title: "Dispute resolved", Body: "The dispute was resolved: {{resolution}}.", DefaultChannels: inAppPushEmail},
		{Type: "order_created", Title: "New order", Body: "Order {{orderNumber}} was placed for your listing.", DefaultChannels: inAppPushEmail},
		{Type: "order_paid", Title: "Order paid", Body: "Order {{orderNumber}} was paid. Time to ship.", DefaultChannels: inAppPushEmail},
		{Type: "order_shipped", Title: "Order shipped", Body: "Your order shipped via {{carrier}} ({{trackingNumber}}).", DefaultChannels: inAppPushEmail},
		{Type: "order_completed", Title: "Order completed", Body: "The order is complete. Thanks for trading on Tarodan!", DefaultChannels: inApp},
		{Type: "order_cancelled", Title: "Order cancelled", Body: "The order was cancelled.", DefaultChannels: inAppPushEmail},
		{Type: "payment_received", Title: "Payment received", Body: "We received your payment.", DefaultChannels: inApp},
		{Type: "payment_failed", Title: "Payment failed", Body: "Your payment did not go through. Please try again.", DefaultChannels: inAppPushEmail},
		{Type: "payment_refunded", Title: "Payment refunded", Body: "Your payment was refunded.", DefaultChannels: inAppPushEmail},
		{Type: "rating_received", Title: "New rating", Body: "You received a {{score}}-star rating.", DefaultChannels: inApp},
	}
}
