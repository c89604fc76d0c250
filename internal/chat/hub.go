package chat

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ecopower/ecopower/internal/model"
)

// Event is a real-time frame pushed to connected clients.
type Event struct {
	Type    string         `json:"type"`
	Message *model.Message `json:"message,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Event types.
const (
	EventMessage = "message"
	EventRead    = "read"
	EventSystem  = "system"
)

// Hub tracks connected clients by user. A user may hold several
// connections at once, one per device or tab.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger.With("component", "chat"),
	}
}

// Register adds a client connection for its user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client connection and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
}

// SendToUser delivers an event to every connection the user has. It
// reports whether at least one connection accepted the frame.
func (h *Hub) SendToUser(userID int64, event Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
			delivered = true
		default:
			// client buffer full, drop the frame rather than block
		}
	}
	return delivered
}

// SendToUsers delivers an event to each listed user and returns the IDs
// that had no live connection.
func (h *Hub) SendToUsers(userIDs []int64, event Event) (offline []int64) {
	for _, id := range userIDs {
		if !h.SendToUser(id, event) {
			offline = append(offline, id)
		}
	}
	return offline
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ClientCount returns the number of open connections across all users.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}
