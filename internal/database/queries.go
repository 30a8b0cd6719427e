package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	createParticipantQuery = "INSERT INTO participants (room_id, worker_id, joined_at) VALUES ($1, $2, $3)"
	messageColumns         = "id, seq, room_id, sender_id, content, attachment_id, created_at"
	notificationColumns    = "id, recipient_id, title, message, source, read, created_at"
)

func (db *PgChatRepository) GetWorker(ctx context.Context, workerId uuid.UUID) (Worker, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, email FROM workers WHERE id = $1 LIMIT 1",
		workerId,
	)

	var w Worker
	err := row.Scan(
		&w.Id,
		&w.Name,
		&w.EmailAddress,
	)

	return w, err
}

func (db *PgChatRepository) GetRoom(ctx context.Context, roomId uuid.UUID) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, name, kind, created_at FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Kind,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgChatRepository) GetRoomWithParticipants(ctx context.Context, roomId uuid.UUID) (*Room, error) {
	query := `
		SELECT
				r.id AS room_id,
				r.name AS room_name,
				r.kind,
				r.created_at AS room_created_at,
				p.worker_id,
				w.name AS worker_name,
				p.joined_at
		FROM rooms r
		LEFT JOIN participants p ON r.id = p.room_id
		LEFT JOIN workers w ON p.worker_id = w.id
		WHERE r.id = $1;
`

	rows, err := db.conn.QueryContext(ctx, query, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room with participants: %w", err)
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var (
			rId        uuid.UUID
			roomName   string
			kind       RoomKind
			createdAt  time.Time
			workerId   uuid.NullUUID
			workerName sql.NullString
			joinedAt   sql.NullTime
		)

		err := rows.Scan(
			&rId,
			&roomName,
			&kind,
			&createdAt,
			&workerId,
			&workerName,
			&joinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if room == nil {
			room = &Room{
				Id:           rId,
				Name:         roomName,
				Kind:         kind,
				CreatedAt:    createdAt,
				Participants: make([]Participant, 0),
			}
		}

		if workerId.Valid {
			room.Participants = append(room.Participants, Participant{
				RoomId:     rId,
				WorkerId:   workerId.UUID,
				WorkerName: workerName.String,
				JoinedAt:   joinedAt.Time,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if room == nil {
		return nil, sql.ErrNoRows
	}

	return room, nil
}

// FindDirectRoom returns the direct room whose participant set is exactly
// {workerA, workerB}. The oldest room wins when a race left more than one,
// so concurrent readers converge on the same id.
func (db *PgChatRepository) FindDirectRoom(ctx context.Context, workerA, workerB uuid.UUID) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT r.id, r.name, r.kind, r.created_at FROM rooms r "+
			"WHERE r.kind = 'direct' "+
			"AND EXISTS (SELECT 1 FROM participants p WHERE p.room_id = r.id AND p.worker_id = $1) "+
			"AND EXISTS (SELECT 1 FROM participants p WHERE p.room_id = r.id AND p.worker_id = $2) "+
			"AND (SELECT count(*) FROM participants p WHERE p.room_id = r.id) = 2 "+
			"ORDER BY r.created_at, r.id LIMIT 1",
		workerA,
		workerB,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Kind,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO rooms (name, kind, direct_key, created_at) "+
			"VALUES ($1, $2, NULLIF($3, ''), $4) RETURNING id, name, kind, created_at",
		params.Name,
		params.Kind,
		params.DirectKey,
		time.Now().UTC(),
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Kind,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgChatRepository) RenameRoom(ctx context.Context, roomId uuid.UUID, name string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE rooms SET name = $2 WHERE id = $1",
		roomId,
		name,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgChatRepository) DeleteRoom(ctx context.Context, roomId uuid.UUID) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "DELETE FROM participants WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// CreateParticipants inserts all membership rows in one transaction so a
// partial batch never becomes visible.
func (db *PgChatRepository) CreateParticipants(ctx context.Context, roomId uuid.UUID, workerIds []uuid.UUID) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, workerId := range workerIds {
		_, err = tx.ExecContext(ctx, createParticipantQuery, roomId, workerId, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *PgChatRepository) IsParticipant(ctx context.Context, roomId, workerId uuid.UUID) (bool, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT 1 FROM participants WHERE room_id = $1 AND worker_id = $2 LIMIT 1",
		roomId,
		workerId,
	)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *PgChatRepository) ListRoomsForWorker(ctx context.Context, workerId uuid.UUID) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT r.id, r.name, r.kind, r.created_at FROM participants p "+
			"JOIN rooms r ON r.id = p.room_id WHERE p.worker_id = $1 ORDER BY r.created_at",
		workerId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(&room.Id, &room.Name, &room.Kind, &room.CreatedAt); err != nil {
			break
		}

		rooms = append(rooms, room)
	}
	return rooms, err
}

func (db *PgChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	var attachmentId interface{}
	if params.AttachmentId != nil {
		attachmentId = *params.AttachmentId
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, sender_id, content, attachment_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING "+messageColumns,
		params.RoomId,
		params.SenderId,
		params.Content,
		attachmentId,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) ListMessages(ctx context.Context, params ListMessagesParams) ([]Message, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE room_id = $1 AND (created_at, seq) > ($2, $3) "+
			"ORDER BY created_at, seq LIMIT $4",
		params.RoomId,
		params.AfterCreated,
		params.AfterSeq,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMessage(row scannable) (Message, error) {
	var (
		msg          Message
		attachmentId uuid.NullUUID
	)

	err := row.Scan(
		&msg.Id,
		&msg.Seq,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Content,
		&attachmentId,
		&msg.CreatedAt,
	)
	if attachmentId.Valid {
		msg.AttachmentId = &attachmentId.UUID
	}

	return msg, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLikePattern quotes LIKE metacharacters so a prefix built from a
// sender name matches literally. Without it a sender named "bob_" would
// match alerts from any four-letter sender starting with "bob".
func escapeLikePattern(s string) string {
	return likeEscaper.Replace(s)
}

// FindUnreadNotification returns the newest unread notification for the
// recipient matching the merge identity (source, title prefix).
func (db *PgChatRepository) FindUnreadNotification(ctx context.Context, recipientId uuid.UUID, source NotificationSource, titlePrefix string) (Notification, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications "+
			"WHERE recipient_id = $1 AND source = $2 AND read = false AND title LIKE $3 || '%' "+
			"ORDER BY created_at DESC LIMIT 1",
		recipientId,
		source,
		escapeLikePattern(titlePrefix),
	)

	return scanNotification(row)
}

func (db *PgChatRepository) CreateNotification(ctx context.Context, params CreateNotificationParams) (Notification, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO notifications (recipient_id, title, message, source, read, created_at) "+
			"VALUES ($1, $2, $3, $4, false, $5) RETURNING "+notificationColumns,
		params.RecipientId,
		params.Title,
		params.Message,
		params.Source,
		time.Now().UTC(),
	)

	return scanNotification(row)
}

// RefreshNotification rewrites the rolling summary and bumps created_at so
// the alert resurfaces at the top of a recency-sorted list.
func (db *PgChatRepository) RefreshNotification(ctx context.Context, notificationId uuid.UUID, message string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE notifications SET message = $2, created_at = $3 WHERE id = $1 AND read = false",
		notificationId,
		message,
		time.Now().UTC(),
	)

	return err
}

func (db *PgChatRepository) MarkNotificationRead(ctx context.Context, notificationId uuid.UUID) error {
	// zero rows affected means already read or deleted, which is a no-op
	_, err := db.conn.ExecContext(ctx,
		"UPDATE notifications SET read = true WHERE id = $1",
		notificationId,
	)

	return err
}

func (db *PgChatRepository) DeleteNotification(ctx context.Context, notificationId uuid.UUID) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = $1",
		notificationId,
	)

	return err
}

func (db *PgChatRepository) ListNotifications(ctx context.Context, recipientId uuid.UUID) ([]Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications "+
			"WHERE recipient_id = $1 ORDER BY created_at DESC",
		recipientId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}

		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func scanNotification(row scannable) (Notification, error) {
	var n Notification
	err := row.Scan(
		&n.Id,
		&n.RecipientId,
		&n.Title,
		&n.Message,
		&n.Source,
		&n.Read,
		&n.CreatedAt,
	)

	return n, err
}
