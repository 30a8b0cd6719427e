package database

import (
	"context"

	"github.com/google/uuid"
)

type ChatRepository interface {
	Ping() error
	GetWorker(ctx context.Context, workerId uuid.UUID) (Worker, error)
	GetRoom(ctx context.Context, roomId uuid.UUID) (Room, error)
	GetRoomWithParticipants(ctx context.Context, roomId uuid.UUID) (*Room, error)
	FindDirectRoom(ctx context.Context, workerA, workerB uuid.UUID) (Room, error)
	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	RenameRoom(ctx context.Context, roomId uuid.UUID, name string) error
	DeleteRoom(ctx context.Context, roomId uuid.UUID) error
	CreateParticipants(ctx context.Context, roomId uuid.UUID, workerIds []uuid.UUID) error
	IsParticipant(ctx context.Context, roomId, workerId uuid.UUID) (bool, error)
	ListRoomsForWorker(ctx context.Context, workerId uuid.UUID) ([]Room, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	ListMessages(ctx context.Context, params ListMessagesParams) ([]Message, error)
	FindUnreadNotification(ctx context.Context, recipientId uuid.UUID, source NotificationSource, titlePrefix string) (Notification, error)
	CreateNotification(ctx context.Context, params CreateNotificationParams) (Notification, error)
	RefreshNotification(ctx context.Context, notificationId uuid.UUID, message string) error
	MarkNotificationRead(ctx context.Context, notificationId uuid.UUID) error
	DeleteNotification(ctx context.Context, notificationId uuid.UUID) error
	ListNotifications(ctx context.Context, recipientId uuid.UUID) ([]Notification, error)
}
