package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/teamhub/chatcore/internal/chat"
	"github.com/teamhub/chatcore/internal/config"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/eventbus"
	"github.com/teamhub/chatcore/internal/push"
	"github.com/teamhub/chatcore/internal/stats"
	"github.com/teamhub/chatcore/internal/testutil"
	"github.com/teamhub/chatcore/internal/types"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestApp(t *testing.T) (*database.MockChatRepository, *http.ServeMux) {
	logger := testutil.TestLogger(t)
	mockDb := &database.MockChatRepository{}

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return()
	su.On("Decr", mock.Anything).Return()

	facade := chat.NewChatFacade(
		logger,
		mockDb,
		chat.NewRoomRegistry(logger, mockDb, su),
		chat.NewMessageStore(logger, mockDb, su),
		chat.NewNotificationAggregator(logger, mockDb, su),
		eventbus.NewMemoryBus(logger),
	)
	t.Cleanup(facade.Close)

	gateway, err := push.NewGateway(logger, facade, su)
	require.NoError(t, err)

	cfg, err := config.NewConfig(
		"localhost:8000",
		"postgres://localhost:5432/chatcore_test",
		base64.StdEncoding.EncodeToString(testSigningKey),
		[]string{"http://localhost:3000"},
		"migrations",
	)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewChatApp(mux, logger, facade, gateway, mockDb, cfg)

	return mockDb, mux
}

func authToken(t *testing.T, workerId uuid.UUID) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"worker-id": workerId.String(),
	})
	signed, err := token.SignedString(testSigningKey)
	require.NoError(t, err)

	return signed
}

func authedRequest(t *testing.T, workerId uuid.UUID, method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+authToken(t, workerId))

	return req
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("Ping").Return(nil)

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("store unreachable", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("Ping").Return(errors.New("connection refused"))

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	workerId := uuid.New()

	t.Run("missing token", func(t *testing.T) {
		_, mux := newTestApp(t)

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, mux := newTestApp(t)

		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrongly signed token", func(t *testing.T) {
		_, mux := newTestApp(t)

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"worker-id": workerId.String(),
		})
		signed, err := token.SignedString([]byte("some other key entirely!!!!!!!!!"))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("cookie token", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("ListNotifications", mock.Anything, workerId).
			Return([]database.Notification{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.AddCookie(&http.Cookie{Name: "token", Value: authToken(t, workerId)})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestOpenDirectRoom(t *testing.T) {
	caller, other := uuid.New(), uuid.New()

	t.Run("returns the pair's room", func(t *testing.T) {
		existing := database.Room{Id: uuid.New(), Name: "Alice & Bob", Kind: database.RoomKindDirect}

		mockDb, mux := newTestApp(t)
		mockDb.On("FindDirectRoom", mock.Anything, caller, other).Return(existing, nil)

		body, _ := json.Marshal(OpenDirectRoomRequest{WorkerId: other})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPost, "/api/rooms/direct", body))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, existing.Id, resp.Id)
		assert.Equal(t, "direct", resp.Kind)
		mockDb.AssertExpectations(t)
	})

	t.Run("rejects a self room", func(t *testing.T) {
		_, mux := newTestApp(t)

		body, _ := json.Marshal(OpenDirectRoomRequest{WorkerId: caller})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPost, "/api/rooms/direct", body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCreateGroupRoom(t *testing.T) {
	caller, other := uuid.New(), uuid.New()
	created := database.Room{Id: uuid.New(), Name: "backend", Kind: database.RoomKindGroup}

	mockDb, mux := newTestApp(t)
	mockDb.On("CreateRoom", mock.Anything, database.CreateRoomParams{
		Name: "backend",
		Kind: database.RoomKindGroup,
	}).Return(created, nil)
	// the caller is always part of the initial membership batch
	mockDb.On("CreateParticipants", mock.Anything, created.Id, []uuid.UUID{other, caller}).
		Return(nil)

	body, _ := json.Marshal(CreateGroupRoomRequest{
		Name:      "backend",
		MemberIds: []uuid.UUID{other},
	})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPost, "/api/rooms", body))

	assert.Equal(t, http.StatusCreated, rr.Code)
	mockDb.AssertExpectations(t)
}

func TestRenameRoom(t *testing.T) {
	caller, roomId := uuid.New(), uuid.New()

	t.Run("renames a group room", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(true, nil)
		mockDb.On("GetRoom", mock.Anything, roomId).
			Return(database.Room{Id: roomId, Kind: database.RoomKindGroup}, nil)
		mockDb.On("RenameRoom", mock.Anything, roomId, "platform").Return(nil)

		body, _ := json.Marshal(RenameRoomRequest{Name: "platform"})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPatch, "/api/rooms?id="+roomId.String(), body))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		mockDb.AssertExpectations(t)
	})

	t.Run("rejects renaming a direct room", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(true, nil)
		mockDb.On("GetRoom", mock.Anything, roomId).
			Return(database.Room{Id: roomId, Kind: database.RoomKindDirect}, nil)

		body, _ := json.Marshal(RenameRoomRequest{Name: "platform"})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPatch, "/api/rooms?id="+roomId.String(), body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("forbidden for non-members", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(false, nil)

		body, _ := json.Marshal(RenameRoomRequest{Name: "platform"})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPatch, "/api/rooms?id="+roomId.String(), body))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockDb.AssertNotCalled(t, "RenameRoom", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSendMessage(t *testing.T) {
	caller, roomId := uuid.New(), uuid.New()

	t.Run("appends and returns the message", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("GetRoom", mock.Anything, roomId).
			Return(database.Room{Id: roomId, Kind: database.RoomKindGroup}, nil)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(true, nil)
		mockDb.On("CreateMessage", mock.Anything, mock.Anything).
			Return(database.Message{Id: uuid.New(), Seq: 1, RoomId: roomId, SenderId: caller, Content: "hello"}, nil)
		// fan-out failures are logged, never surfaced on the send path
		mockDb.On("GetRoomWithParticipants", mock.Anything, roomId).
			Return(nil, errors.New("connection reset"))

		body, _ := json.Marshal(SendMessageRequest{RoomId: roomId, Content: "hello"})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPost, "/api/messages", body))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "hello", resp.Content)
		assert.Equal(t, roomId, resp.RoomId)
	})

	t.Run("forbidden for non-participants", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("GetRoom", mock.Anything, roomId).
			Return(database.Room{Id: roomId, Kind: database.RoomKindGroup}, nil)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(false, nil)

		body, _ := json.Marshal(SendMessageRequest{RoomId: roomId, Content: "hello"})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPost, "/api/messages", body))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("store failure maps to retryable", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("GetRoom", mock.Anything, roomId).
			Return(database.Room{Id: roomId, Kind: database.RoomKindGroup}, nil)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(true, nil)
		mockDb.On("CreateMessage", mock.Anything, mock.Anything).
			Return(database.Message{}, errors.New("connection reset"))

		body, _ := json.Marshal(SendMessageRequest{RoomId: roomId, Content: "hello"})
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPost, "/api/messages", body))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	})
}

func TestGetMessages(t *testing.T) {
	caller, roomId := uuid.New(), uuid.New()

	t.Run("serves a cursor page", func(t *testing.T) {
		page := []database.Message{
			{Id: uuid.New(), Seq: 5, RoomId: roomId, Content: "a"},
			{Id: uuid.New(), Seq: 6, RoomId: roomId, Content: "b"},
		}

		after := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		mockDb, mux := newTestApp(t)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(true, nil)
		mockDb.On("GetRoom", mock.Anything, roomId).
			Return(database.Room{Id: roomId, Kind: database.RoomKindGroup}, nil)
		mockDb.On("ListMessages", mock.Anything, mock.MatchedBy(func(p database.ListMessagesParams) bool {
			return p.RoomId == roomId && p.AfterSeq == 4 && p.Limit == 2 && p.AfterCreated.Equal(after)
		})).Return(page, nil)

		target := fmt.Sprintf("/api/messages?room_id=%s&after_seq=4&after_created=%s&limit=2",
			roomId, after.Format(time.RFC3339Nano))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodGet, target, nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp []types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Len(t, resp, 2)
		assert.EqualValues(t, 5, resp[0].Seq)
		mockDb.AssertExpectations(t)
	})

	t.Run("forbidden for non-participants", func(t *testing.T) {
		mockDb, mux := newTestApp(t)
		mockDb.On("IsParticipant", mock.Anything, roomId, caller).Return(false, nil)

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodGet, "/api/messages?room_id="+roomId.String(), nil))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestGetNotifications(t *testing.T) {
	caller := uuid.New()
	alerts := []database.Notification{
		{Id: uuid.New(), RecipientId: caller, Title: "New message from Alice", Source: database.SourceChat},
	}

	mockDb, mux := newTestApp(t)
	mockDb.On("ListNotifications", mock.Anything, caller).Return(alerts, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodGet, "/api/notifications", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp []types.Notification
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "New message from Alice", resp[0].Title)
	assert.Equal(t, "chat", resp[0].Source)
}

func TestMarkNotificationRead(t *testing.T) {
	caller, notificationId := uuid.New(), uuid.New()

	mockDb, mux := newTestApp(t)
	mockDb.On("MarkNotificationRead", mock.Anything, notificationId).Return(nil)

	target := "/api/notifications/read?id=" + notificationId.String()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodPost, target, nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	mockDb.AssertExpectations(t)
}

func TestDeleteNotification(t *testing.T) {
	caller, notificationId := uuid.New(), uuid.New()

	mockDb, mux := newTestApp(t)
	mockDb.On("DeleteNotification", mock.Anything, notificationId).Return(nil)

	target := "/api/notifications?id=" + notificationId.String()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(t, caller, http.MethodDelete, target, nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	mockDb.AssertExpectations(t)
}
