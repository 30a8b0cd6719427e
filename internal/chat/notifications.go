package chat

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/stats"
)

const (
	// maxNotificationMessageLen bounds the stored preview text, trailing
	// ellipsis included.
	maxNotificationMessageLen = 50
	ellipsis                  = "..."

	newMessageTitlePrefix = "New message from "
)

// NotificationAggregator creates or merges unread alerts so a burst of
// messages from one sender collapses into a single rolling notification per
// recipient instead of one row per message.
type NotificationAggregator struct {
	log   *log.Logger
	db    database.ChatRepository
	stats stats.StatsProvider
}

func NewNotificationAggregator(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider) *NotificationAggregator {
	su.RegisterMetric("NotificationsCreated")
	su.RegisterMetric("NotificationsMerged")

	return &NotificationAggregator{
		log:   logger,
		db:    db,
		stats: su,
	}
}

func notificationTitle(senderName string) string {
	return newMessageTitlePrefix + senderName
}

func rollingSummary(senderName string) string {
	return "You have new unread messages from " + senderName
}

// truncateMessage caps the preview at maxNotificationMessageLen runes total,
// replacing the tail with an ellipsis when the content is longer.
func truncateMessage(content string) string {
	runes := []rune(content)
	if len(runes) <= maxNotificationMessageLen {
		return content
	}

	return string(runes[:maxNotificationMessageLen-len(ellipsis)]) + ellipsis
}

// NotifyParticipants fans the message out to every participant of the room
// except the sender. The merge identity is (recipient, source=chat, unread,
// title prefix), so unread alerts stay distinct per sender but never
// accumulate per message. A failure for one recipient does not stop fan-out
// to the rest.
func (a *NotificationAggregator) NotifyParticipants(ctx context.Context, room *database.Room, sender database.Worker, msg database.Message) error {
	var errs []error
	for _, p := range room.Participants {
		if p.WorkerId == sender.Id {
			continue
		}

		if err := a.upsertFor(ctx, p.WorkerId, sender, msg); err != nil {
			a.log.Printf("notify participant %s: %v", p.WorkerId, err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *NotificationAggregator) upsertFor(ctx context.Context, recipientId uuid.UUID, sender database.Worker, msg database.Message) error {
	title := notificationTitle(sender.Name)

	existing, err := a.db.FindUnreadNotification(ctx, recipientId, database.SourceChat, title)
	if err == nil {
		// merge: same row, rolling summary, bumped timestamp
		if err := a.db.RefreshNotification(ctx, existing.Id, rollingSummary(sender.Name)); err != nil {
			return NewTransientError("refresh notification", err)
		}
		a.stats.Incr("NotificationsMerged")
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return NewTransientError("find unread notification", err)
	}

	_, err = a.db.CreateNotification(ctx, database.CreateNotificationParams{
		RecipientId: recipientId,
		Title:       title,
		Message:     truncateMessage(msg.Content),
		Source:      database.SourceChat,
	})
	if err != nil {
		return NewTransientError("create notification", err)
	}

	a.stats.Incr("NotificationsCreated")
	return nil
}

// MarkRead is idempotent: marking an already-read or missing notification is
// a no-op success.
func (a *NotificationAggregator) MarkRead(ctx context.Context, notificationId uuid.UUID) error {
	if notificationId == uuid.Nil {
		return NewValidationError("notification id cannot be empty")
	}

	if err := a.db.MarkNotificationRead(ctx, notificationId); err != nil {
		return NewTransientError("mark notification read", err)
	}

	return nil
}

// Delete is idempotent: deleting an already-deleted notification is a no-op
// success.
func (a *NotificationAggregator) Delete(ctx context.Context, notificationId uuid.UUID) error {
	if notificationId == uuid.Nil {
		return NewValidationError("notification id cannot be empty")
	}

	if err := a.db.DeleteNotification(ctx, notificationId); err != nil {
		return NewTransientError("delete notification", err)
	}

	return nil
}

// ListNotifications returns the recipient's notifications newest first, the
// order a recency-sorted alert list renders them in.
func (a *NotificationAggregator) ListNotifications(ctx context.Context, recipientId uuid.UUID) ([]database.Notification, error) {
	if recipientId == uuid.Nil {
		return nil, NewValidationError("recipient id cannot be empty")
	}

	notifications, err := a.db.ListNotifications(ctx, recipientId)
	if err != nil {
		return nil, NewTransientError("list notifications", err)
	}

	return notifications, nil
}
