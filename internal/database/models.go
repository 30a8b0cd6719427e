package database

import (
	"time"

	"github.com/google/uuid"
)

type RoomKind string

const (
	RoomKindDirect RoomKind = "direct"
	RoomKindGroup  RoomKind = "group"
	RoomKindTeam   RoomKind = "team"
)

type NotificationSource string

const (
	SourceChat     NotificationSource = "chat"
	SourceCalendar NotificationSource = "calendar"
	SourceProject  NotificationSource = "project"
)

type Worker struct {
	Id           uuid.UUID
	Name         string
	EmailAddress string
}

type Room struct {
	Id           uuid.UUID
	Name         string
	Kind         RoomKind
	CreatedAt    time.Time
	Participants []Participant
}

type Participant struct {
	RoomId     uuid.UUID
	WorkerId   uuid.UUID
	WorkerName string
	JoinedAt   time.Time
}

type Message struct {
	Id uuid.UUID
	// Seq is assigned by the store on insert and only ever grows, which
	// makes it a stable tie-breaker for messages created within the same
	// clock tick.
	Seq          int64
	RoomId       uuid.UUID
	SenderId     uuid.UUID
	Content      string
	AttachmentId *uuid.UUID
	CreatedAt    time.Time
}

type Notification struct {
	Id          uuid.UUID
	RecipientId uuid.UUID
	Title       string
	Message     string
	Source      NotificationSource
	Read        bool
	CreatedAt   time.Time
}

type CreateRoomParams struct {
	Name string
	Kind RoomKind
	// DirectKey is the sorted worker-pair key for direct rooms, empty for
	// group and team rooms. A partial unique index on it makes the store
	// reject a second direct room for the same pair.
	DirectKey string
}

type CreateMessageParams struct {
	RoomId       uuid.UUID
	SenderId     uuid.UUID
	Content      string
	AttachmentId *uuid.UUID
}

type CreateNotificationParams struct {
	RecipientId uuid.UUID
	Title       string
	Message     string
	Source      NotificationSource
}

// ListMessagesParams pages ascending through a room's history. AfterCreated
// and AfterSeq form an exclusive (created_at, seq) cursor; zero values start
// from the beginning of the room.
type ListMessagesParams struct {
	RoomId       uuid.UUID
	AfterCreated time.Time
	AfterSeq     int64
	Limit        int
}
