// Package eventbus delivers row-change tokens from the store to in-process
// subscribers. A token identifies what changed, never what the new state is;
// consumers invalidate their cached read model and re-pull instead of
// patching it incrementally.
package eventbus

import (
	"fmt"
	"log"
	"sync"

	"github.com/teris-io/shortid"
)

const (
	TableMessages      = "messages"
	TableNotifications = "notifications"
)

// Event is a change token: a table plus the equality-filter key the
// subscription was opened with (room id for messages, recipient id for
// notifications).
type Event struct {
	Table string `json:"table"`
	Key   string `json:"key"`
}

// Subscription receives events for one (table, key) pair on C until
// unsubscribed. The channel is buffered and delivery is lossy under
// backpressure; a dropped token only costs the consumer a later refetch.
type Subscription struct {
	Id    string
	Table string
	Key   string
	C     chan Event
}

type Bus interface {
	Subscribe(table, key string) (*Subscription, error)
	Unsubscribe(sub *Subscription)
	Publish(ev Event)
}

const subscriptionBuffer = 16

// MemoryBus fans events out to in-process subscribers. It backs single-node
// deployments and tests; PgBus layers the same interface over LISTEN/NOTIFY.
type MemoryBus struct {
	log  *log.Logger
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription
}

func NewMemoryBus(logger *log.Logger) *MemoryBus {
	return &MemoryBus{
		log:  logger,
		subs: make(map[string]map[string]*Subscription),
	}
}

func topic(table, key string) string {
	return table + "/" + key
}

func (b *MemoryBus) Subscribe(table, key string) (*Subscription, error) {
	if table == "" || key == "" {
		return nil, fmt.Errorf("subscription requires a table and a key")
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate subscription id: %w", err)
	}

	sub := &Subscription{
		Id:    id,
		Table: table,
		Key:   key,
		C:     make(chan Event, subscriptionBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := topic(table, key)
	if b.subs[t] == nil {
		b.subs[t] = make(map[string]*Subscription)
	}
	b.subs[t][sub.Id] = sub

	return sub, nil
}

func (b *MemoryBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	t := topic(sub.Table, sub.Key)
	if m, ok := b.subs[t]; ok {
		if _, ok := m[sub.Id]; ok {
			delete(m, sub.Id)
			close(sub.C)
		}
		if len(m) == 0 {
			delete(b.subs, t)
		}
	}
}

func (b *MemoryBus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[topic(ev.Table, ev.Key)] {
		select {
		case sub.C <- ev:
		default:
			b.log.Printf("dropping event for slow subscriber %s on %s/%s", sub.Id, ev.Table, ev.Key)
		}
	}
}
