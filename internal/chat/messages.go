package chat

import (
	"context"
	"iter"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/stats"
)

const historyPageSize = 100

// MessageStore appends immutable messages and serves ordered history. It is
// the authorization boundary for sends: only room participants may append.
type MessageStore struct {
	log   *log.Logger
	db    database.ChatRepository
	stats stats.StatsProvider
}

func NewMessageStore(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider) *MessageStore {
	su.RegisterMetric("MessagesSent")

	return &MessageStore{
		log:   logger,
		db:    db,
		stats: su,
	}
}

// Append persists a message after verifying the room exists and the sender
// belongs to it. The returned message carries its store-assigned id and
// timestamp.
func (s *MessageStore) Append(ctx context.Context, roomId, senderId uuid.UUID, content string, attachmentId *uuid.UUID) (database.Message, error) {
	if roomId == uuid.Nil || senderId == uuid.Nil {
		return database.Message{}, NewValidationError("room and sender ids cannot be empty")
	}
	if strings.TrimSpace(content) == "" {
		return database.Message{}, NewValidationError("message content cannot be empty")
	}

	if _, err := s.db.GetRoom(ctx, roomId); err != nil {
		return database.Message{}, storeError("room not found", err)
	}

	member, err := s.db.IsParticipant(ctx, roomId, senderId)
	if err != nil {
		return database.Message{}, NewTransientError("check participant", err)
	}
	if !member {
		return database.Message{}, NewForbiddenError("sender is not a participant of the room")
	}

	msg, err := s.db.CreateMessage(ctx, database.CreateMessageParams{
		RoomId:       roomId,
		SenderId:     senderId,
		Content:      content,
		AttachmentId: attachmentId,
	})
	if err != nil {
		return database.Message{}, NewTransientError("create message", err)
	}

	s.stats.Incr("MessagesSent")
	return msg, nil
}

// History returns the room's messages ascending by (created_at, seq) as a
// lazy sequence. Each pull fetches at most one page from the store, so a
// consumer can stop early without paying for the full history. Appends that
// land while iterating only extend the sequence, never invalidate it.
func (s *MessageStore) History(ctx context.Context, roomId uuid.UUID) iter.Seq2[database.Message, error] {
	return func(yield func(database.Message, error) bool) {
		params := database.ListMessagesParams{
			RoomId: roomId,
			Limit:  historyPageSize,
		}

		for {
			page, err := s.db.ListMessages(ctx, params)
			if err != nil {
				yield(database.Message{}, NewTransientError("list messages", err))
				return
			}

			for _, msg := range page {
				if !yield(msg, nil) {
					return
				}
			}

			if len(page) < historyPageSize {
				return
			}

			last := page[len(page)-1]
			params.AfterCreated = last.CreatedAt
			params.AfterSeq = last.Seq
		}
	}
}

// HistoryPage fetches a single ascending page after the given cursor, for
// callers that want explicit pagination instead of the lazy sequence.
func (s *MessageStore) HistoryPage(ctx context.Context, params database.ListMessagesParams) ([]database.Message, error) {
	if params.RoomId == uuid.Nil {
		return nil, NewValidationError("room id cannot be empty")
	}

	if _, err := s.db.GetRoom(ctx, params.RoomId); err != nil {
		return nil, storeError("room not found", err)
	}

	msgs, err := s.db.ListMessages(ctx, params)
	if err != nil {
		return nil, NewTransientError("list messages", err)
	}

	return msgs, nil
}
