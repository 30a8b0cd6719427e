package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetWorker(ctx context.Context, workerId uuid.UUID) (Worker, error) {
	args := m.Called(ctx, workerId)
	return args.Get(0).(Worker), args.Error(1)
}
func (m *MockChatRepository) GetRoom(ctx context.Context, roomId uuid.UUID) (Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomWithParticipants(ctx context.Context, roomId uuid.UUID) (*Room, error) {
	args := m.Called(ctx, roomId)
	if room, ok := args.Get(0).(*Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) FindDirectRoom(ctx context.Context, workerA, workerB uuid.UUID) (Room, error) {
	args := m.Called(ctx, workerA, workerB)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) RenameRoom(ctx context.Context, roomId uuid.UUID, name string) error {
	args := m.Called(ctx, roomId, name)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteRoom(ctx context.Context, roomId uuid.UUID) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
func (m *MockChatRepository) CreateParticipants(ctx context.Context, roomId uuid.UUID, workerIds []uuid.UUID) error {
	args := m.Called(ctx, roomId, workerIds)
	return args.Error(0)
}
func (m *MockChatRepository) IsParticipant(ctx context.Context, roomId, workerId uuid.UUID) (bool, error) {
	args := m.Called(ctx, roomId, workerId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) ListRoomsForWorker(ctx context.Context, workerId uuid.UUID) ([]Room, error) {
	args := m.Called(ctx, workerId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) ListMessages(ctx context.Context, params ListMessagesParams) ([]Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) FindUnreadNotification(ctx context.Context, recipientId uuid.UUID, source NotificationSource, titlePrefix string) (Notification, error) {
	args := m.Called(ctx, recipientId, source, titlePrefix)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockChatRepository) CreateNotification(ctx context.Context, params CreateNotificationParams) (Notification, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockChatRepository) RefreshNotification(ctx context.Context, notificationId uuid.UUID, message string) error {
	args := m.Called(ctx, notificationId, message)
	return args.Error(0)
}
func (m *MockChatRepository) MarkNotificationRead(ctx context.Context, notificationId uuid.UUID) error {
	args := m.Called(ctx, notificationId)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteNotification(ctx context.Context, notificationId uuid.UUID) error {
	args := m.Called(ctx, notificationId)
	return args.Error(0)
}
func (m *MockChatRepository) ListNotifications(ctx context.Context, recipientId uuid.UUID) ([]Notification, error) {
	args := m.Called(ctx, recipientId)
	return args.Get(0).([]Notification), args.Error(1)
}
