package chat

import (
	"context"
	"iter"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/teamhub/chatcore/internal/database"
	"github.com/teamhub/chatcore/internal/eventbus"
)

// ChatFacade is the single entry point client code uses: it composes the
// room registry, message store and notification aggregator, publishes change
// tokens after writes, and keeps advisory read models that bus events
// invalidate.
type ChatFacade struct {
	log      *log.Logger
	db       database.ChatRepository
	registry *RoomRegistry
	messages *MessageStore
	notifier *NotificationAggregator
	bus      eventbus.Bus

	cache *readCache

	mu       sync.Mutex
	watchers map[string]*eventbus.Subscription
	wg       sync.WaitGroup
}

func NewChatFacade(logger *log.Logger, db database.ChatRepository, registry *RoomRegistry, messages *MessageStore, notifier *NotificationAggregator, bus eventbus.Bus) *ChatFacade {
	return &ChatFacade{
		log:      logger,
		db:       db,
		registry: registry,
		messages: messages,
		notifier: notifier,
		bus:      bus,
		cache:    newReadCache(),
		watchers: make(map[string]*eventbus.Subscription),
	}
}

func cacheKey(table, key string) string {
	return table + "/" + key
}

// ensureWatch lazily opens a bus subscription for a cached key and keeps the
// cache entry invalidated for as long as the facade lives. The watcher
// goroutine exits when Close unsubscribes and the channel closes.
func (f *ChatFacade) ensureWatch(table, key string) {
	ck := cacheKey(table, key)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.watchers[ck]; ok {
		return
	}

	sub, err := f.bus.Subscribe(table, key)
	if err != nil {
		// without a watcher the entry cannot be trusted, so don't cache it
		f.log.Printf("subscribe %s: %v", ck, err)
		return
	}
	f.watchers[ck] = sub

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for range sub.C {
			f.cache.invalidate(ck)
		}
	}()
}

func (f *ChatFacade) watched(table, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.watchers[cacheKey(table, key)]
	return ok
}

// OpenDirect returns the single direct room for the pair, creating it on
// first contact.
func (f *ChatFacade) OpenDirect(ctx context.Context, workerA, workerB uuid.UUID) (database.Room, error) {
	return f.registry.OpenOrCreateDirectRoom(ctx, workerA, workerB)
}

func (f *ChatFacade) CreateGroup(ctx context.Context, name string, kind database.RoomKind, memberIds []uuid.UUID) (database.Room, error) {
	return f.registry.CreateGroupRoom(ctx, name, kind, memberIds)
}

func (f *ChatFacade) RenameRoom(ctx context.Context, roomId uuid.UUID, name string) error {
	return f.registry.RenameRoom(ctx, roomId, name)
}

func (f *ChatFacade) Room(ctx context.Context, roomId uuid.UUID) (*database.Room, error) {
	return f.registry.Room(ctx, roomId)
}

func (f *ChatFacade) RoomsForWorker(ctx context.Context, workerId uuid.UUID) ([]database.Room, error) {
	return f.registry.RoomsForWorker(ctx, workerId)
}

// SendMessage appends the message and then fans out notifications to the
// other participants. The send is complete once fan-out has been attempted:
// fan-out failures are logged, never returned, because message delivery is
// the primary contract.
func (f *ChatFacade) SendMessage(ctx context.Context, roomId, senderId uuid.UUID, content string, attachmentId *uuid.UUID) (database.Message, error) {
	msg, err := f.messages.Append(ctx, roomId, senderId, content, attachmentId)
	if err != nil {
		return database.Message{}, err
	}

	f.cache.invalidate(cacheKey(eventbus.TableMessages, roomId.String()))
	f.bus.Publish(eventbus.Event{Table: eventbus.TableMessages, Key: roomId.String()})

	f.fanOut(ctx, msg)

	return msg, nil
}

func (f *ChatFacade) fanOut(ctx context.Context, msg database.Message) {
	room, err := f.registry.Room(ctx, msg.RoomId)
	if err != nil {
		f.log.Printf("fan-out: fetch room %s: %v", msg.RoomId, err)
		return
	}

	sender, err := f.db.GetWorker(ctx, msg.SenderId)
	if err != nil {
		f.log.Printf("fan-out: fetch sender %s: %v", msg.SenderId, err)
		return
	}

	if err := f.notifier.NotifyParticipants(ctx, room, sender, msg); err != nil {
		f.log.Printf("fan-out for message %s: %v", msg.Id, err)
	}

	for _, p := range room.Participants {
		if p.WorkerId == sender.Id {
			continue
		}
		key := p.WorkerId.String()
		f.cache.invalidate(cacheKey(eventbus.TableNotifications, key))
		f.bus.Publish(eventbus.Event{Table: eventbus.TableNotifications, Key: key})
	}
}

// History streams the room's messages ascending by (created_at, seq).
func (f *ChatFacade) History(ctx context.Context, roomId uuid.UUID) iter.Seq2[database.Message, error] {
	return f.messages.History(ctx, roomId)
}

func (f *ChatFacade) HistoryPage(ctx context.Context, params database.ListMessagesParams) ([]database.Message, error) {
	return f.messages.HistoryPage(ctx, params)
}

// RecentMessages is the cached message-list read model for a room. Cache
// entries are invalidated by bus events and refetched whole on the next
// read.
func (f *ChatFacade) RecentMessages(ctx context.Context, roomId uuid.UUID) ([]database.Message, error) {
	ck := cacheKey(eventbus.TableMessages, roomId.String())
	if v, ok := f.cache.get(ck); ok {
		return v.([]database.Message), nil
	}

	// watch before fetching so a token that lands mid-fetch is not lost
	f.ensureWatch(eventbus.TableMessages, roomId.String())

	var msgs []database.Message
	for msg, err := range f.messages.History(ctx, roomId) {
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	if f.watched(eventbus.TableMessages, roomId.String()) {
		f.cache.set(ck, msgs)
	}

	return msgs, nil
}

// Notifications is the cached notification-list read model for a recipient,
// newest first.
func (f *ChatFacade) Notifications(ctx context.Context, recipientId uuid.UUID) ([]database.Notification, error) {
	ck := cacheKey(eventbus.TableNotifications, recipientId.String())
	if v, ok := f.cache.get(ck); ok {
		return v.([]database.Notification), nil
	}

	f.ensureWatch(eventbus.TableNotifications, recipientId.String())

	notifications, err := f.notifier.ListNotifications(ctx, recipientId)
	if err != nil {
		return nil, err
	}

	if f.watched(eventbus.TableNotifications, recipientId.String()) {
		f.cache.set(ck, notifications)
	}

	return notifications, nil
}

func (f *ChatFacade) MarkRead(ctx context.Context, recipientId, notificationId uuid.UUID) error {
	if err := f.notifier.MarkRead(ctx, notificationId); err != nil {
		return err
	}

	f.publishNotificationChange(recipientId)
	return nil
}

func (f *ChatFacade) DeleteNotification(ctx context.Context, recipientId, notificationId uuid.UUID) error {
	if err := f.notifier.Delete(ctx, notificationId); err != nil {
		return err
	}

	f.publishNotificationChange(recipientId)
	return nil
}

func (f *ChatFacade) publishNotificationChange(recipientId uuid.UUID) {
	key := recipientId.String()
	f.cache.invalidate(cacheKey(eventbus.TableNotifications, key))
	f.bus.Publish(eventbus.Event{Table: eventbus.TableNotifications, Key: key})
}

// SubscribeRoom opens a change-token subscription for a room's messages,
// for collaborators that drive their own refetching (the push gateway).
func (f *ChatFacade) SubscribeRoom(roomId uuid.UUID) (*eventbus.Subscription, error) {
	return f.bus.Subscribe(eventbus.TableMessages, roomId.String())
}

// SubscribeNotifications opens a change-token subscription for a worker's
// notification list.
func (f *ChatFacade) SubscribeNotifications(recipientId uuid.UUID) (*eventbus.Subscription, error) {
	return f.bus.Subscribe(eventbus.TableNotifications, recipientId.String())
}

func (f *ChatFacade) Unsubscribe(sub *eventbus.Subscription) {
	f.bus.Unsubscribe(sub)
}

// Close tears down the facade's cache watchers.
func (f *ChatFacade) Close() {
	f.mu.Lock()
	for ck, sub := range f.watchers {
		f.bus.Unsubscribe(sub)
		delete(f.watchers, ck)
	}
	f.mu.Unlock()

	f.wg.Wait()
}
