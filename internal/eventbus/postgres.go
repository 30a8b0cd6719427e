package eventbus

import (
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
)

// notifyChannel is the Postgres NOTIFY channel the migration-installed
// triggers write to on message and notification inserts/updates.
const notifyChannel = "chatcore_events"

// PgBus adapts Postgres LISTEN/NOTIFY to the Bus interface. Triggers in the
// store publish a JSON change token per row change, so events from every
// process sharing the database reach every local subscriber.
type PgBus struct {
	log      *log.Logger
	local    *MemoryBus
	listener *pq.Listener
	stop     chan struct{}
	done     chan struct{}
}

func NewPgBus(logger *log.Logger, dsn string) (*PgBus, error) {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Printf("pg listener event %d: %v", ev, err)
		}
	})

	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, err
	}

	return &PgBus{
		log:      logger,
		local:    NewMemoryBus(logger),
		listener: listener,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (b *PgBus) Subscribe(table, key string) (*Subscription, error) {
	return b.local.Subscribe(table, key)
}

func (b *PgBus) Unsubscribe(sub *Subscription) {
	b.local.Unsubscribe(sub)
}

// Publish is a no-op: with a Postgres-backed bus the store's triggers are
// the single source of change tokens, so a local publish would deliver every
// event twice.
func (b *PgBus) Publish(Event) {}

// Run consumes listener notifications until Close. Periodic pings surface
// broken connections to the reconnecting listener.
func (b *PgBus) Run() {
	defer close(b.done)

	pingTicker := time.NewTicker(90 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case n := <-b.listener.Notify:
			if n == nil {
				// reconnect; subscribers hold advisory caches, so missed
				// tokens are corrected by their next refetch
				continue
			}

			var ev Event
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				b.log.Printf("bad notify payload %q: %v", n.Extra, err)
				continue
			}

			b.local.Publish(ev)
		case <-pingTicker.C:
			if err := b.listener.Ping(); err != nil {
				b.log.Printf("pg listener ping: %v", err)
			}
		case <-b.stop:
			return
		}
	}
}

func (b *PgBus) Close() error {
	close(b.stop)
	<-b.done
	return b.listener.Close()
}
