// Package websocket owns the live connection directory: at most one
// delivery channel per user, populated on connect and removed on disconnect.
package websocket

import (
	"log/slog"
	"sync"

	"bayou-chat/internal/utils"

	"github.com/google/uuid"
)

// Hub maintains the set of active clients, at most one per user.
type Hub struct {
	// Register requests from new clients.
	Register chan *Client

	// Unregister requests from disconnecting clients.
	Unregister chan *Client

	// Registered clients by user id. A second connection for the same user
	// replaces the first; multi-device fan-out is not supported.
	clients map[uuid.UUID]*Client

	// Mutex to protect concurrent access to the clients map.
	mu sync.RWMutex

	log     *slog.Logger
	metrics *utils.MetricsCollector
}

func NewHub(log *slog.Logger, metrics *utils.MetricsCollector) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[uuid.UUID]*Client),
		log:        log,
		metrics:    metrics,
	}
}

// Run starts the hub's processing loop.
func (h *Hub) Run() {
	h.log.Info("websocket hub started")
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if previous, ok := h.clients[client.UserID]; ok {
				// Replace the stale connection; its pumps shut down once
				// the send channel closes.
				close(previous.Send)
				h.metrics.ClientDisconnected()
				h.log.Info("replacing websocket connection", "userId", client.UserID)
			}
			h.clients[client.UserID] = client
			h.mu.Unlock()
			h.metrics.ClientConnected()
			h.log.Info("websocket client registered", "userId", client.UserID)

		case client := <-h.Unregister:
			h.mu.Lock()
			// Only remove the entry if it still belongs to this client;
			// a replacement connection may already hold the slot.
			if current, ok := h.clients[client.UserID]; ok && current == client {
				delete(h.clients, client.UserID)
				close(client.Send)
				h.metrics.ClientDisconnected()
				h.log.Info("websocket client unregistered", "userId", client.UserID)
			}
			h.mu.Unlock()
		}
	}
}

// PushTo queues a payload for the user's live connection. It never blocks:
// when the user has no connection, or the connection's buffer is full, the
// payload is dropped and false is returned.
func (h *Hub) PushTo(userID uuid.UUID, payload []byte) bool {
	// The send stays under the read lock so the channel cannot be closed
	// by a concurrent register/unregister between lookup and send. The
	// select never blocks, so the lock is held only briefly.
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[userID]
	if !ok {
		return false
	}

	select {
	case client.Send <- payload:
		return true
	default:
		h.log.Warn("send buffer full, dropping event", "userId", userID)
		return false
	}
}

// Connected reports whether the user currently has a live connection.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}
