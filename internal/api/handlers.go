package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/push"
	"github.com/teamhub/chatcore/internal/types"
)

type OpenDirectRoomRequest struct {
	WorkerId uuid.UUID `json:"worker_id"`
}

type CreateGroupRoomRequest struct {
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	MemberIds []uuid.UUID `json:"member_ids"`
}

type RenameRoomRequest struct {
	Name string `json:"name"`
}

type SendMessageRequest struct {
	RoomId       uuid.UUID  `json:"room_id"`
	Content      string     `json:"content"`
	AttachmentId *uuid.UUID `json:"attachment_id,omitempty"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func roomResponse(room database.Room) types.Room {
	resp := types.Room{
		Id:        room.Id,
		Name:      room.Name,
		Kind:      string(room.Kind),
		CreatedAt: room.CreatedAt,
	}
	for _, p := range room.Participants {
		resp.Participants = append(resp.Participants, types.Participant{
			WorkerId: p.WorkerId,
			Name:     p.WorkerName,
			JoinedAt: p.JoinedAt,
		})
	}

	return resp
}

func messageResponse(msg database.Message) types.Message {
	return types.Message{
		Id:           msg.Id,
		Seq:          msg.Seq,
		RoomId:       msg.RoomId,
		SenderId:     msg.SenderId,
		Content:      msg.Content,
		AttachmentId: msg.AttachmentId,
		CreatedAt:    msg.CreatedAt,
	}
}

func notificationResponse(n database.Notification) types.Notification {
	return types.Notification{
		Id:          n.Id,
		RecipientId: n.RecipientId,
		Title:       n.Title,
		Message:     n.Message,
		Source:      string(n.Source),
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

func (s *ChatApp) openDirectRoom(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req OpenDirectRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.facade.OpenDirect(r.Context(), workerId, req.WorkerId)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomResponse(room))
}

func (s *ChatApp) createGroupRoom(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateGroupRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	kind := database.RoomKind(req.Kind)
	if req.Kind == "" {
		kind = database.RoomKindGroup
	}

	// the creator is always a member
	memberIds := req.MemberIds
	if !slices.Contains(memberIds, workerId) {
		memberIds = append(memberIds, workerId)
	}

	room, err := s.facade.CreateGroup(r.Context(), req.Name, kind, memberIds)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, roomResponse(room))
}

func (s *ChatApp) renameRoom(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.db.IsParticipant(r.Context(), roomId, workerId)
	if err != nil {
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req RenameRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.facade.RenameRoom(r.Context(), roomId, req.Name); err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) getRooms(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if rawId := r.URL.Query().Get("id"); rawId != "" {
		roomId, err := uuid.Parse(rawId)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		room, err := s.facade.Room(r.Context(), roomId)
		if err != nil {
			errResp := fromChatError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, roomResponse(*room))
		return
	}

	rooms, err := s.facade.RoomsForWorker(r.Context(), workerId)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, roomResponse(room))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.facade.SendMessage(r.Context(), req.RoomId, workerId, req.Content, req.AttachmentId)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, messageResponse(msg))
}

func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId, err := uuid.Parse(r.URL.Query().Get("room_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	member, err := s.db.IsParticipant(r.Context(), roomId, workerId)
	if err != nil {
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !member {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var (
		messages []database.Message
		query    = r.URL.Query()
	)

	if query.Get("after_seq") == "" && query.Get("limit") == "" {
		// no cursor requested, serve the cached read model
		messages, err = s.facade.RecentMessages(r.Context(), roomId)
	} else {
		params := database.ListMessagesParams{RoomId: roomId}

		if rawAfter := query.Get("after_seq"); rawAfter != "" {
			if params.AfterSeq, err = strconv.ParseInt(rawAfter, 10, 64); err != nil {
				errResp := NewBadRequestError()
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
			if params.AfterCreated, err = time.Parse(time.RFC3339Nano, query.Get("after_created")); err != nil {
				errResp := NewBadRequestError()
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}

		if rawLimit := query.Get("limit"); rawLimit != "" {
			if params.Limit, err = strconv.Atoi(rawLimit); err != nil {
				errResp := NewBadRequestError()
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}

		messages, err = s.facade.HistoryPage(r.Context(), params)
	}
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, messageResponse(msg))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) getNotifications(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notifications, err := s.facade.Notifications(r.Context(), workerId)
	if err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Notification, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, notificationResponse(n))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notificationId, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.facade.MarkRead(r.Context(), workerId, notificationId); err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) deleteNotification(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notificationId, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.facade.DeleteNotification(r.Context(), workerId, notificationId); err != nil {
		errResp := fromChatError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	workerId, ok := WorkerId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := push.NewClient(workerId, conn, s.gateway, s.log)

	s.gateway.RegisterClient(client)
	go client.Write()
	go client.Read()
}
