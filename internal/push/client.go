package push

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teamhub/chatcore/internal/chat"
	"github.com/teamhub/chatcore/internal/eventbus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024

	watchTimeout = 5 * time.Second
)

// Client is one websocket connection bound to a worker. On connect it is
// attached to the worker's notification feed; room feeds are added and
// removed with watch/unwatch requests.
type Client struct {
	conn     *websocket.Conn
	gateway  *Gateway
	log      *log.Logger
	workerId uuid.UUID
	send     chan *ServerMessage

	subsLock sync.Mutex
	subs     map[string]*eventbus.Subscription
	wg       sync.WaitGroup

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(workerId uuid.UUID, conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		gateway:  gw,
		log:      l,
		workerId: workerId,
		send:     make(chan *ServerMessage, 256),
		subs:     make(map[string]*eventbus.Subscription),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		switch {
		case msg.Watch != nil:
			c.handleWatch(&msg)
		case msg.Unwatch != nil:
			c.handleUnwatch(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

// handleWatch attaches the client to a room's change feed after checking the
// worker actually belongs to the room.
func (c *Client) handleWatch(msg *ClientMessage) {
	roomId, err := uuid.Parse(msg.Watch.RoomId)
	if err != nil {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), watchTimeout)
	defer cancel()

	room, err := c.gateway.facade.Room(ctx, roomId)
	if err != nil {
		if chat.IsKind(err, chat.KindNotFound) {
			c.queueMessage(ErrRoomNotFound(msg.Id))
		} else {
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	var member bool
	for _, p := range room.Participants {
		if p.WorkerId == c.workerId {
			member = true
			break
		}
	}
	if !member {
		c.queueMessage(ErrNotParticipant(msg.Id))
		return
	}

	sub, err := c.gateway.facade.SubscribeRoom(roomId)
	if err != nil {
		c.log.Println("subscribe room:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.addSubscription(msg.Watch.RoomId, sub)
	c.queueMessage(NoErrOK(msg.Id))
}

func (c *Client) handleUnwatch(msg *ClientMessage) {
	c.removeSubscription(msg.Unwatch.RoomId)
	c.queueMessage(NoErrOK(msg.Id))
}

// attachNotifications opens the worker's notification feed. Called by the
// gateway right after registration.
func (c *Client) attachNotifications() error {
	sub, err := c.gateway.facade.SubscribeNotifications(c.workerId)
	if err != nil {
		return err
	}

	c.addSubscription("notifications:"+c.workerId.String(), sub)
	return nil
}

func (c *Client) addSubscription(key string, sub *eventbus.Subscription) {
	c.subsLock.Lock()
	if old, ok := c.subs[key]; ok {
		c.gateway.facade.Unsubscribe(old)
	}
	c.subs[key] = sub
	c.subsLock.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// forward change tokens until the subscription channel closes
		for ev := range sub.C {
			c.queueMessage(invalidateMessage(ev.Table, ev.Key))
		}
	}()
}

func (c *Client) removeSubscription(key string) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	if sub, ok := c.subs[key]; ok {
		c.gateway.facade.Unsubscribe(sub)
		delete(c.subs, key)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.subsLock.Lock()
	for key, sub := range c.subs {
		c.gateway.facade.Unsubscribe(sub)
		delete(c.subs, key)
	}
	c.subsLock.Unlock()
	c.wg.Wait()

	select {
	case c.gateway.DeregisterChan <- c:
	case <-c.gateway.done:
		// gateway already stopped, nobody is draining the channel
	}
	c.stopClient()
}
