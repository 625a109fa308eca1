package websocket

import (
	"log/slog"
	"sync"
)

// Message is one realtime frame pushed to a browser. Snapshot frames carry
// the full refreshed bookmark list; auth frames carry the state change kind.
type Message struct {
	Type      string `json:"type"`
	Bookmarks any    `json:"bookmarks,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// Hub tracks the active WebSocket clients. Unlike a broadcast hub, delivery
// is per client: each client holds its own user-filtered subscriptions, so
// one user's changes never reach another's socket.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CountForUser returns how many open sockets belong to the given user.
func (h *Hub) CountForUser(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.userID == userID {
			n++
		}
	}
	return n
}
