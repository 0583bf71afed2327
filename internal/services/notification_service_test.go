package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/tarodan/api/internal/domain"
	"github.com/tarodan/api/internal/notify"
	"github.com/tarodan/api/internal/repositories"
)

type notificationFixture struct {
	notifications *memoryNotificationRepo
	deliveries    *memoryDeliveryRepo
	users         *stubUserRepo
	email         *fakeSender
	push          *fakeSender
	sms           *fakeSender
	queue         *captureDeliveryQueue
	logs          *logCapture
	svc           NotificationService
}

func newNotificationFixture(t *testing.T, now time.Time) *notificationFixture {
	t.Helper()

	f := &notificationFixture{
		notifications: &memoryNotificationRepo{byID: map[string]domain.Notification{}},
		deliveries:    &memoryDeliveryRepo{},
		users: &stubUserRepo{profiles: map[string]domain.UserProfile{
			"ben": {
				ID:          "ben",
				DisplayName: "Ben",
				Email:       "ben@example.com",
				PhoneNumber: "+15551230001",
				PushToken:   "ExponentPushToken[ben]",
			},
		}},
		email: &fakeSender{channel: domain.ChannelEmail},
		push:  &fakeSender{channel: domain.ChannelPush},
		sms:   &fakeSender{channel: domain.ChannelSMS},
		queue: &captureDeliveryQueue{},
		logs:  &logCapture{},
	}

	seq := 0
	svc, err := NewNotificationService(NotificationServiceDeps{
		Notifications: f.notifications,
		Deliveries:    f.deliveries,
		Users:         f.users,
		Senders:       []notify.Sender{f.email, f.push, f.sms},
		Queue:         f.queue,
		Clock:         func() time.Time { return now },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("test%04d", seq)
		},
		Logger: f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	f.svc = svc
	return f
}

func TestNotificationServiceSendInApp(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)

	result, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "order_shipped",
		Channels: []domain.NotificationChannel{domain.ChannelInApp},
		Data:     map[string]string{"carrier": "UPS", "trackingNumber": "1Z999"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.NotificationID != "ntf_test0001" {
		t.Fatalf("notification id = %q", result.NotificationID)
	}
	if len(result.Deliveries) != 1 || result.Deliveries[0].Status != domain.DeliverySent {
		t.Fatalf("deliveries = %+v", result.Deliveries)
	}

	stored := f.notifications.byID["ntf_test0001"]
	if stored.Title != "Order shipped" {
		t.Fatalf("title = %q", stored.Title)
	}
	if stored.Body != "Your order shipped via UPS (1Z999)." {
		t.Fatalf("body = %q", stored.Body)
	}
	if stored.Read {
		t.Fatal("new notification must be unread")
	}
	if len(f.queue.published) != 0 {
		t.Fatalf("in-app deliveries must not hit the queue, got %d", len(f.queue.published))
	}
}

func TestNotificationServiceMissingDataRendersEmpty(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)

	_, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "trade_disputed",
		Channels: []domain.NotificationChannel{domain.ChannelInApp},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	stored := f.notifications.byID["ntf_test0001"]
	if stored.Body != "A dispute was opened: " {
		t.Fatalf("body = %q", stored.Body)
	}
}

func TestNotificationServiceDefaultChannelsFromTemplate(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)

	result, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID: "ben",
		Type:   "order_paid",
		Data:   map[string]string{"orderNumber": "TR-2026-000042"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	// order_paid defaults to in-app, push, email.
	if len(result.Deliveries) != 3 {
		t.Fatalf("deliveries = %d, want 3", len(result.Deliveries))
	}
	if len(f.push.sent) != 1 || len(f.email.sent) != 1 || len(f.sms.sent) != 0 {
		t.Fatalf("sender calls push=%d email=%d sms=%d", len(f.push.sent), len(f.email.sent), len(f.sms.sent))
	}
	if f.email.sent[0].Title != "Order paid" || f.email.sent[0].To.Email != "ben@example.com" {
		t.Fatalf("email message = %+v", f.email.sent[0])
	}
	if f.push.sent[0].To.PushToken != "ExponentPushToken[ben]" {
		t.Fatalf("push recipient = %+v", f.push.sent[0].To)
	}
	// Outbound attempts are mirrored onto the queue; the in-app row is not.
	if len(f.queue.published) != 2 {
		t.Fatalf("queue published = %d, want 2", len(f.queue.published))
	}
}

func TestNotificationServiceChannelFailuresAreIndependent(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)
	f.push.err = errors.New("expo unreachable")

	result, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "trade_completed",
		Channels: []domain.NotificationChannel{domain.ChannelInApp, domain.ChannelPush, domain.ChannelEmail},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	byChannel := map[domain.NotificationChannel]domain.NotificationDelivery{}
	for _, delivery := range result.Deliveries {
		byChannel[delivery.Channel] = delivery
	}
	if byChannel[domain.ChannelPush].Status != domain.DeliveryFailed {
		t.Fatalf("push delivery = %+v", byChannel[domain.ChannelPush])
	}
	if byChannel[domain.ChannelPush].Error != "expo unreachable" {
		t.Fatalf("push error = %q", byChannel[domain.ChannelPush].Error)
	}
	if byChannel[domain.ChannelInApp].Status != domain.DeliverySent {
		t.Fatalf("in-app delivery = %+v", byChannel[domain.ChannelInApp])
	}
	if byChannel[domain.ChannelEmail].Status != domain.DeliverySent {
		t.Fatalf("email delivery = %+v", byChannel[domain.ChannelEmail])
	}
	// All three attempts land in the log, including the failure.
	if len(f.deliveries.rows) != 3 {
		t.Fatalf("delivery log rows = %d, want 3", len(f.deliveries.rows))
	}
	if !f.logs.contains("notification.delivery.failed") {
		t.Fatalf("missing delivery failure log, got %v", f.logs.events())
	}
}

func TestNotificationServiceMissingSenderFailsThatChannelOnly(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)

	svc, err := NewNotificationService(NotificationServiceDeps{
		Notifications: f.notifications,
		Deliveries:    f.deliveries,
		Users:         f.users,
		Senders:       []notify.Sender{f.email},
		Clock:         func() time.Time { return now },
		IDGenerator:   func() string { return "one" },
		Logger:        f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}

	result, err := svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "payment_failed",
		Channels: []domain.NotificationChannel{domain.ChannelSMS, domain.ChannelEmail},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var smsDelivery domain.NotificationDelivery
	for _, delivery := range result.Deliveries {
		if delivery.Channel == domain.ChannelSMS {
			smsDelivery = delivery
		}
	}
	if smsDelivery.Status != domain.DeliveryFailed {
		t.Fatalf("sms delivery = %+v", smsDelivery)
	}
	if len(f.email.sent) != 1 {
		t.Fatalf("email calls = %d, want 1", len(f.email.sent))
	}
}

func TestNotificationServiceRecipientLookupFailureSparesInApp(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)
	f.users.err = repoError{message: "user not found", notFound: true}

	result, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "trade_accepted",
		Channels: []domain.NotificationChannel{domain.ChannelInApp, domain.ChannelPush},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, delivery := range result.Deliveries {
		switch delivery.Channel {
		case domain.ChannelInApp:
			if delivery.Status != domain.DeliverySent {
				t.Fatalf("in-app delivery = %+v", delivery)
			}
		case domain.ChannelPush:
			if delivery.Status != domain.DeliveryFailed {
				t.Fatalf("push delivery = %+v", delivery)
			}
		}
	}
}

func TestNotificationServiceSendValidation(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)

	cases := []struct {
		name string
		cmd  SendNotificationCommand
	}{
		{"missing user", SendNotificationCommand{Type: "order_paid"}},
		{"missing type", SendNotificationCommand{UserID: "ben"}},
		{"unknown type", SendNotificationCommand{UserID: "ben", Type: "flash_sale"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Send(context.Background(), tc.cmd); !errors.Is(err, ErrNotificationInvalidInput) {
				t.Fatalf("err = %v, want ErrNotificationInvalidInput", err)
			}
		})
	}
	if len(f.deliveries.rows) != 0 {
		t.Fatalf("validation failures must not log deliveries, got %d", len(f.deliveries.rows))
	}
}

func TestNotificationServiceDuplicateChannelsCollapse(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)

	result, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "rating_received",
		Channels: []domain.NotificationChannel{domain.ChannelInApp, domain.ChannelInApp},
		Data:     map[string]string{"score": "5"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(result.Deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(result.Deliveries))
	}
}

func TestNotificationServiceInboxAndMarkRead(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)

	for _, notifType := range []string{"order_paid", "order_shipped"} {
		if _, err := f.svc.Send(context.Background(), SendNotificationCommand{
			UserID:   "ben",
			Type:     notifType,
			Channels: []domain.NotificationChannel{domain.ChannelInApp},
		}); err != nil {
			t.Fatalf("Send %s: %v", notifType, err)
		}
	}

	page, err := f.svc.ListNotifications(context.Background(), ListNotificationsCommand{UserID: "ben"})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}

	read, err := f.svc.MarkRead(context.Background(), MarkNotificationReadCommand{
		UserID:         "ben",
		NotificationID: page.Items[0].ID,
	})
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !read.Read || read.ReadAt == nil {
		t.Fatalf("read notification = %+v", read)
	}

	unread, err := f.svc.ListNotifications(context.Background(), ListNotificationsCommand{UserID: "ben", UnreadOnly: true})
	if err != nil {
		t.Fatalf("ListNotifications unread: %v", err)
	}
	if len(unread.Items) != 1 {
		t.Fatalf("unread items = %d, want 1", len(unread.Items))
	}

	if _, err := f.svc.MarkRead(context.Background(), MarkNotificationReadCommand{
		UserID:         "mallory",
		NotificationID: page.Items[0].ID,
	}); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("cross-user MarkRead err = %v, want ErrNotificationNotFound", err)
	}
}

func TestNotificationServiceListDeliveries(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)
	f.push.err = errors.New("expo unreachable")

	if _, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "order_paid",
		Channels: []domain.NotificationChannel{domain.ChannelPush, domain.ChannelEmail},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	failed, err := f.svc.ListDeliveries(context.Background(), DeliveryFilter{Status: string(domain.DeliveryFailed)})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(failed.Items) != 1 || failed.Items[0].Channel != domain.ChannelPush {
		t.Fatalf("failed deliveries = %+v", failed.Items)
	}
}

func TestNotificationServiceLogFailuresDoNotFailSend(t *testing.T) {
	now := time.Date(2026, time.May, 5, 8, 0, 0, 0, time.UTC)
	f := newNotificationFixture(t, now)
	f.deliveries.appendErr = errors.New("firestore down")
	f.queue.err = errors.New("pubsub down")

	if _, err := f.svc.Send(context.Background(), SendNotificationCommand{
		UserID:   "ben",
		Type:     "order_paid",
		Channels: []domain.NotificationChannel{domain.ChannelEmail},
	}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !f.logs.contains("notification.delivery.log.failed") {
		t.Fatalf("missing delivery log failure event, got %v", f.logs.events())
	}
	if !f.logs.contains("notification.queue.publish.failed") {
		t.Fatalf("missing queue failure event, got %v", f.logs.events())
	}
}

// --- test doubles ---

type memoryNotificationRepo struct {
	byID map[string]domain.Notification
}

func (m *memoryNotificationRepo) Insert(_ context.Context, n domain.Notification) error {
	m.byID[n.ID] = n
	return nil
}

func (m *memoryNotificationRepo) FindByID(_ context.Context, userID, notificationID string) (domain.Notification, error) {
	n, ok := m.byID[notificationID]
	if !ok || n.UserID != userID {
		return domain.Notification{}, repoError{message: "notification not found", notFound: true}
	}
	return n, nil
}

func (m *memoryNotificationRepo) MarkRead(_ context.Context, userID, notificationID string, readAt time.Time) (domain.Notification, error) {
	n, ok := m.byID[notificationID]
	if !ok || n.UserID != userID {
		return domain.Notification{}, repoError{message: "notification not found", notFound: true}
	}
	n.Read = true
	n.ReadAt = &readAt
	m.byID[notificationID] = n
	return n, nil
}

func (m *memoryNotificationRepo) ListByUser(_ context.Context, userID string, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	var items []domain.Notification
	for _, n := range m.byID {
		if n.UserID != userID {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		items = append(items, n)
	}
	return domain.CursorPage[domain.Notification]{Items: items}, nil
}

type memoryDeliveryRepo struct {
	rows      []domain.NotificationDelivery
	appendErr error
}

func (m *memoryDeliveryRepo) Append(_ context.Context, delivery domain.NotificationDelivery) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.rows = append(m.rows, delivery)
	return nil
}

func (m *memoryDeliveryRepo) List(_ context.Context, filter repositories.DeliveryListFilter) (domain.CursorPage[domain.NotificationDelivery], error) {
	var items []domain.NotificationDelivery
	for _, row := range m.rows {
		if filter.UserID != "" && row.UserID != filter.UserID {
			continue
		}
		if filter.Channel != "" && string(row.Channel) != filter.Channel {
			continue
		}
		if filter.Status != "" && string(row.Status) != filter.Status {
			continue
		}
		items = append(items, row)
	}
	return domain.CursorPage[domain.NotificationDelivery]{Items: items}, nil
}

type stubUserRepo struct {
	profiles map[string]domain.UserProfile
	err      error
}

func (s *stubUserRepo) FindByID(_ context.Context, userID string) (domain.UserProfile, error) {
	if s.err != nil {
		return domain.UserProfile{}, s.err
	}
	profile, ok := s.profiles[userID]
	if !ok {
		return domain.UserProfile{}, repoError{message: "user not found", notFound: true}
	}
	return profile, nil
}

func (s *stubUserRepo) UpdateProfile(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	s.profiles[profile.ID] = profile
	return profile, nil
}

type fakeSender struct {
	channel domain.NotificationChannel
	sent    []notify.Message
	err     error
}

func (f *fakeSender) Channel() domain.NotificationChannel {
	return f.channel
}

func (f *fakeSender) Send(_ context.Context, msg notify.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type captureDeliveryQueue struct {
	published []domain.NotificationDelivery
	err       error
}

func (q *captureDeliveryQueue) PublishDeliveryJob(_ context.Context, delivery domain.NotificationDelivery) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, delivery)
	return nil
}
