package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/teamhub/chatcore/internal/chat"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/eventbus"
	"github.com/teamhub/chatcore/internal/stats"
	"github.com/teamhub/chatcore/internal/testutil"
)

type gatewayFixture struct {
	gateway *Gateway
	bus     *eventbus.MemoryBus
	mockDb  *database.MockChatRepository
	server  *httptest.Server
}

// newGatewayFixture stands up a running gateway behind a real websocket
// endpoint so tests exercise the full connect, watch and invalidate path.
func newGatewayFixture(t *testing.T, workerId uuid.UUID) *gatewayFixture {
	logger := testutil.TestLogger(t)
	mockDb := &database.MockChatRepository{}

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Return()
	su.On("Decr", mock.Anything).Return()

	bus := eventbus.NewMemoryBus(logger)
	facade := chat.NewChatFacade(
		logger,
		mockDb,
		chat.NewRoomRegistry(logger, mockDb, su),
		chat.NewMessageStore(logger, mockDb, su),
		chat.NewNotificationAggregator(logger, mockDb, su),
		bus,
	)
	t.Cleanup(facade.Close)

	gateway, err := NewGateway(logger, facade, su)
	require.NoError(t, err)
	go gateway.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		gateway.Shutdown(ctx)
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		client := NewClient(workerId, conn, gateway, logger)
		gateway.RegisterClient(client)
		go client.Write()
		go client.Read()
	}))
	t.Cleanup(server.Close)

	return &gatewayFixture{gateway: gateway, bus: bus, mockDb: mockDb, server: server}
}

func (f *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func TestGateway_WatchDeliversInvalidationHints(t *testing.T) {
	workerId, roomId := uuid.New(), uuid.New()
	room := &database.Room{
		Id:   roomId,
		Kind: database.RoomKindGroup,
		Participants: []database.Participant{
			{RoomId: roomId, WorkerId: workerId},
		},
	}

	fixture := newGatewayFixture(t, workerId)
	fixture.mockDb.On("GetRoomWithParticipants", mock.Anything, roomId).Return(room, nil)

	conn := fixture.dial(t)

	watch, _ := json.Marshal(ClientMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Watch:       &Watch{RoomId: roomId.String()},
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, watch))

	resp := readServerMessage(t, conn)
	require.NotNil(t, resp.Response)
	assert.Equal(t, http.StatusOK, resp.Response.ResponseCode)
	assert.Equal(t, 1, resp.Id)

	// the watch acknowledgment means the room subscription is live
	fixture.bus.Publish(eventbus.Event{Table: eventbus.TableMessages, Key: roomId.String()})

	hint := readServerMessage(t, conn)
	require.NotNil(t, hint.Invalidate)
	assert.Equal(t, eventbus.TableMessages, hint.Invalidate.Table)
	assert.Equal(t, roomId.String(), hint.Invalidate.Key)
}

func TestGateway_NotificationFeedAttachedOnConnect(t *testing.T) {
	workerId := uuid.New()

	fixture := newGatewayFixture(t, workerId)
	conn := fixture.dial(t)

	// registration runs on the gateway loop, so publish until the feed
	// token comes through; dropped extras cost nothing
	stopPub := make(chan struct{})
	defer close(stopPub)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopPub:
				return
			case <-ticker.C:
				fixture.bus.Publish(eventbus.Event{
					Table: eventbus.TableNotifications,
					Key:   workerId.String(),
				})
			}
		}
	}()

	hint := readServerMessage(t, conn)
	require.NotNil(t, hint.Invalidate)
	assert.Equal(t, eventbus.TableNotifications, hint.Invalidate.Table)
	assert.Equal(t, workerId.String(), hint.Invalidate.Key)
}

func TestGateway_WatchRejectedForNonParticipant(t *testing.T) {
	workerId, roomId := uuid.New(), uuid.New()
	room := &database.Room{
		Id:   roomId,
		Kind: database.RoomKindGroup,
		Participants: []database.Participant{
			{RoomId: roomId, WorkerId: uuid.New()},
		},
	}

	fixture := newGatewayFixture(t, workerId)
	fixture.mockDb.On("GetRoomWithParticipants", mock.Anything, roomId).Return(room, nil)

	conn := fixture.dial(t)

	watch, _ := json.Marshal(ClientMessage{
		BaseMessage: BaseMessage{Id: 7, Timestamp: Now()},
		Watch:       &Watch{RoomId: roomId.String()},
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, watch))

	resp := readServerMessage(t, conn)
	require.NotNil(t, resp.Response)
	assert.Equal(t, http.StatusForbidden, resp.Response.ResponseCode)
}

func TestGateway_MalformedMessageGetsErrorResponse(t *testing.T) {
	workerId := uuid.New()

	fixture := newGatewayFixture(t, workerId)
	conn := fixture.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{}")))

	resp := readServerMessage(t, conn)
	require.NotNil(t, resp.Response)
	assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode)
}

func TestGateway_ShutdownClosesClients(t *testing.T) {
	workerId := uuid.New()

	fixture := newGatewayFixture(t, workerId)
	conn := fixture.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fixture.gateway.Shutdown(ctx))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
