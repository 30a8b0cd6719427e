package types

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	Id           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	Participants []Participant `json:"participants,omitempty"`
	CreatedAt    time.Time     `json:"created_at,omitempty"`
}

type Participant struct {
	WorkerId uuid.UUID `json:"worker_id"`
	Name     string    `json:"name,omitempty"`
	JoinedAt time.Time `json:"joined_at,omitempty"`
}

type Message struct {
	Id           uuid.UUID  `json:"id"`
	Seq          int64      `json:"seq"`
	RoomId       uuid.UUID  `json:"room_id"`
	SenderId     uuid.UUID  `json:"sender_id"`
	Content      string     `json:"content"`
	AttachmentId *uuid.UUID `json:"attachment_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Notification struct {
	Id          uuid.UUID `json:"id"`
	RecipientId uuid.UUID `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Source      string    `json:"source"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
