// Package push delivers invalidate-and-refetch hints to connected websocket
// clients. It never ships row data: a client that receives a hint re-pulls
// the affected read model over the HTTP API, which keeps push events and
// independently-issued pulls from ever conflicting.
package push

import (
	"context"
	"log"
	"sync"

	"github.com/teamhub/chatcore/internal/chat"
	"github.com/teamhub/chatcore/internal/stats"
)

type Gateway struct {
	log            *log.Logger
	facade         *chat.ChatFacade
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	RegisterChan   chan *Client
	DeregisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
}

type stopReq struct {
	done chan struct{}
}

func NewGateway(logger *log.Logger, facade *chat.ChatFacade, su stats.StatsProvider) (*Gateway, error) {
	su.RegisterMetric("NumConnectedClients")

	return &Gateway{
		log:            logger,
		facade:         facade,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		RegisterChan:   make(chan *Client),
		DeregisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (g *Gateway) Run() {
	defer close(g.done)

	for {
		select {
		case client := <-g.RegisterChan:
			g.log.Printf("adding connection for worker %q", client.workerId)
			g.addClient(client)

			if err := client.attachNotifications(); err != nil {
				g.log.Println("attach notifications:", err)
				client.queueMessage(ErrInternalError(-1))
			}
		case client := <-g.DeregisterChan:
			g.log.Printf("removing connection for worker %q", client.workerId)
			g.removeClient(client)
		case req := <-g.stop:
			g.log.Println("stopping clients")
			g.clientsLock.Lock()
			for c := range g.clients {
				c.stopClient()
			}
			g.clientsLock.Unlock()

			close(req.done)
			return
		}
	}
}

func (g *Gateway) RegisterClient(c *Client) {
	g.RegisterChan <- c
}

func (g *Gateway) addClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()
	g.clients[c] = struct{}{}
	g.stats.Incr("NumConnectedClients")
}

func (g *Gateway) removeClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()
	if _, ok := g.clients[c]; ok {
		delete(g.clients, c)
		g.stats.Decr("NumConnectedClients")
	}
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case g.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
