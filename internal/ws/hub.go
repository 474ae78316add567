// Package ws streams a user's live timeline to websocket clients and accepts
// chat actions over the same connection.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ad-assistant/backend/internal/execution"
	"ad-assistant/backend/internal/service"
	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/logger"

	"github.com/gorilla/websocket"
)

// Sessions hands out live timelines
type Sessions interface {
	Acquire(ctx context.Context, userID string) (*timeline.Synchronizer, func(), error)
}

// ChatSender runs a chat turn
type ChatSender interface {
	SendMessage(ctx context.Context, userID string, req service.SendRequest) (*service.SendResult, error)
}

// Executor applies the operations in a message
type Executor interface {
	Implement(ctx context.Context, userID, messageID string) (*execution.Result, error)
}

type Hub struct {
	sessions Sessions
	chat     ChatSender
	executor Executor
	upgrader websocket.Upgrader
	log      *logger.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

// NewHub creates a hub. An empty allowedOrigins list or a "*" entry accepts
// any origin.
func NewHub(sessions Sessions, chat ChatSender, executor Executor, allowedOrigins []string, log *logger.Logger) *Hub {
	h := &Hub{
		sessions:   sessions,
		chat:       chat,
		executor:   executor,
		log:        log,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      originChecker(allowedOrigins),
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run tracks clients until ctx is done, then disconnects all of them
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount(len(h.clients))
			client.log.Debug("Client registered", "client_id", client.id)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.setCount(len(h.clients))
				client.close()
				client.log.Debug("Client unregistered", "client_id", client.id)
			}

		case <-ctx.Done():
			for client := range h.clients {
				client.close()
			}
			h.clients = make(map[*Client]struct{})
			h.setCount(0)
			h.log.Info("Websocket hub stopped")
			return
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.close()
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ActiveConnections returns the number of registered clients
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
