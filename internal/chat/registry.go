package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/stats"
)

// RoomRegistry creates and looks up rooms while holding the two membership
// invariants: a direct room has exactly two participants for its lifetime,
// and at most one direct room exists per unordered worker pair.
type RoomRegistry struct {
	log   *log.Logger
	db    database.ChatRepository
	stats stats.StatsProvider
}

func NewRoomRegistry(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider) *RoomRegistry {
	su.RegisterMetric("RoomsCreated")
	su.RegisterMetric("DirectRoomConflicts")

	return &RoomRegistry{
		log:   logger,
		db:    db,
		stats: su,
	}
}

// directKey builds the sorted pair key enforced unique by the store, so the
// same two workers always map to the same key regardless of argument order.
func directKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if bs < as {
		as, bs = bs, as
	}

	return as + ":" + bs
}

// OpenOrCreateDirectRoom returns the one direct room for the pair, creating
// it on first contact. Concurrent calls for the same pair converge on a
// single room id; a caller that loses the race deletes its own room.
func (r *RoomRegistry) OpenOrCreateDirectRoom(ctx context.Context, workerA, workerB uuid.UUID) (database.Room, error) {
	if workerA == uuid.Nil || workerB == uuid.Nil {
		return database.Room{}, NewValidationError("worker id cannot be empty")
	}
	if workerA == workerB {
		return database.Room{}, NewValidationError("direct room requires two distinct workers")
	}

	room, err := r.db.FindDirectRoom(ctx, workerA, workerB)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return database.Room{}, NewTransientError("find direct room", err)
	}

	wa, err := r.db.GetWorker(ctx, workerA)
	if err != nil {
		return database.Room{}, storeError("worker not found", err)
	}
	wb, err := r.db.GetWorker(ctx, workerB)
	if err != nil {
		return database.Room{}, storeError("worker not found", err)
	}

	comp := newCompensation(r.log)

	created, err := r.db.CreateRoom(ctx, database.CreateRoomParams{
		Name:      fmt.Sprintf("%s & %s", wa.Name, wb.Name),
		Kind:      database.RoomKindDirect,
		DirectKey: directKey(workerA, workerB),
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			// another caller created the pair's room first
			return r.adoptExistingDirectRoom(ctx, workerA, workerB, err)
		}
		return database.Room{}, NewTransientError("create room", err)
	}
	comp.push("delete room", func(ctx context.Context) error {
		return r.db.DeleteRoom(ctx, created.Id)
	})

	if err := r.db.CreateParticipants(ctx, created.Id, []uuid.UUID{workerA, workerB}); err != nil {
		// the room row must not outlive its failed membership batch
		if rerr := comp.rollback(ctx, err); rerr != nil {
			return database.Room{}, rerr
		}

		if database.IsUniqueViolation(err) {
			return r.adoptExistingDirectRoom(ctx, workerA, workerB, err)
		}
		return database.Room{}, NewTransientError("create participants", err)
	}

	// detect-and-merge fallback for stores without the unique pair index:
	// re-query and keep only the winning room
	winner, err := r.db.FindDirectRoom(ctx, workerA, workerB)
	if err != nil {
		// our room exists and is fully populated, so hand it out
		r.log.Printf("post-create re-query for pair %s failed: %v", directKey(workerA, workerB), err)
		r.stats.Incr("RoomsCreated")
		return created, nil
	}

	if winner.Id != created.Id {
		r.log.Printf("lost direct-room race for pair %s, deleting %s in favor of %s",
			directKey(workerA, workerB), created.Id, winner.Id)
		r.stats.Incr("DirectRoomConflicts")
		if err := r.db.DeleteRoom(ctx, created.Id); err != nil {
			return database.Room{}, NewConflictError("direct room race detected but compensation failed", err)
		}
		return winner, nil
	}

	r.stats.Incr("RoomsCreated")
	return created, nil
}

// adoptExistingDirectRoom resolves a lost creation race by re-querying for
// the winner's room. Conflict never surfaces to the caller on this path.
func (r *RoomRegistry) adoptExistingDirectRoom(ctx context.Context, workerA, workerB uuid.UUID, cause error) (database.Room, error) {
	r.stats.Incr("DirectRoomConflicts")

	room, err := r.db.FindDirectRoom(ctx, workerA, workerB)
	if err != nil {
		// the winner's transaction is not visible yet, let the caller retry
		return database.Room{}, NewTransientError("direct room creation raced", errors.Join(cause, err))
	}

	return room, nil
}

// CreateGroupRoom creates a group or team room with its initial membership
// batch. A failed batch deletes the room so no nameless or memberless room
// is ever visible to queries.
func (r *RoomRegistry) CreateGroupRoom(ctx context.Context, name string, kind database.RoomKind, memberIds []uuid.UUID) (database.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return database.Room{}, NewValidationError("room name cannot be empty")
	}
	if len(memberIds) < 1 {
		return database.Room{}, NewValidationError("room requires at least one member")
	}
	for _, id := range memberIds {
		if id == uuid.Nil {
			return database.Room{}, NewValidationError("member id cannot be empty")
		}
	}
	if kind != database.RoomKindGroup && kind != database.RoomKindTeam {
		return database.Room{}, NewValidationError("room kind must be group or team")
	}

	comp := newCompensation(r.log)

	created, err := r.db.CreateRoom(ctx, database.CreateRoomParams{
		Name: name,
		Kind: kind,
	})
	if err != nil {
		return database.Room{}, NewTransientError("create room", err)
	}
	comp.push("delete room", func(ctx context.Context) error {
		return r.db.DeleteRoom(ctx, created.Id)
	})

	if err := r.db.CreateParticipants(ctx, created.Id, dedupeIds(memberIds)); err != nil {
		if rerr := comp.rollback(ctx, err); rerr != nil {
			return database.Room{}, rerr
		}
		return database.Room{}, NewTransientError("create participants", err)
	}

	r.stats.Incr("RoomsCreated")
	return created, nil
}

// RenameRoom updates the display name of a group or team room. Direct room
// names are derived from the pair and stay fixed for the room's lifetime.
func (r *RoomRegistry) RenameRoom(ctx context.Context, roomId uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return NewValidationError("room name cannot be empty")
	}

	room, err := r.db.GetRoom(ctx, roomId)
	if err != nil {
		return storeError("room not found", err)
	}

	if room.Kind == database.RoomKindDirect {
		return NewValidationError("direct rooms cannot be renamed")
	}

	if err := r.db.RenameRoom(ctx, roomId, name); err != nil {
		return storeError("room not found", err)
	}

	return nil
}

// Room fetches a room with its participants and checks the direct-room
// membership invariant post-read.
func (r *RoomRegistry) Room(ctx context.Context, roomId uuid.UUID) (*database.Room, error) {
	room, err := r.db.GetRoomWithParticipants(ctx, roomId)
	if err != nil {
		return nil, storeError("room not found", err)
	}

	if room.Kind == database.RoomKindDirect && len(room.Participants) != 2 {
		err := NewFatalError(
			fmt.Sprintf("direct room %s has %d participants", room.Id, len(room.Participants)), nil)
		r.log.Printf("invariant violation: %v", err)
		return nil, err
	}

	return room, nil
}

func (r *RoomRegistry) RoomsForWorker(ctx context.Context, workerId uuid.UUID) ([]database.Room, error) {
	if workerId == uuid.Nil {
		return nil, NewValidationError("worker id cannot be empty")
	}

	rooms, err := r.db.ListRoomsForWorker(ctx, workerId)
	if err != nil {
		return nil, NewTransientError("list rooms", err)
	}

	return rooms, nil
}

func dedupeIds(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
