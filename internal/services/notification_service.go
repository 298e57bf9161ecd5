package services

import (
	"context"
	"log/slog"

	"famiglia/internal/core"
)

// NotificationService records member-facing events and fans them out to the
// message broker. Delivery is best effort: a failed write or publish is
// logged and never propagates into the operation that emitted the event.
type NotificationService struct {
	store     NotificationStore
	publisher EventPublisher
}

func NewNotificationService(store NotificationStore, publisher EventPublisher) *NotificationService {
	return &NotificationService{store: store, publisher: publisher}
}

func (s *NotificationService) Emit(ctx context.Context, n core.Notification) {
	stored, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record notification",
			"family_id", n.FamilyID, "type", n.Type, "error", err)
		return
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishNotification(ctx, stored); err != nil {
		slog.WarnContext(ctx, "Failed to publish notification event",
			"notification_id", stored.ID, "type", stored.Type, "error", err)
	}
}

// List returns the caller's notifications, targeted plus group broadcasts,
// newest first.
func (s *NotificationService) List(ctx context.Context, userID, familyID int64, limit int) ([]core.Notification, error) {
	m, err := activeMember(ctx, s.store, familyID, userID)
	if err != nil {
		return nil, err
	}
	return s.store.ListNotifications(ctx, familyID, m.ID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, familyID, notificationID int64) error {
	m, err := activeMember(ctx, s.store, familyID, userID)
	if err != nil {
		return err
	}
	return s.store.MarkNotificationRead(ctx, notificationID, m.ID)
}
