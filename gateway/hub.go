package gateway

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"chorus/messaging-service/metrics"
	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

var (
	ErrSlowConsumer = errors.New("send buffer full")
	ErrClientClosed = errors.New("connection closed")
)

// Hub is the registry of live connections, keyed by user and connection id.
// A client's send channel is only closed while holding the write lock after
// the client was removed, so senders holding the read lock never write to a
// closed channel.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[string]*Client
	closed  bool
	logger  *utils.Logger
}

func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[string]*Client),
		logger:  logger.With("component", "hub"),
	}
}

// Join registers c. It fails once the hub has been shut down.
func (h *Hub) Join(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClientClosed
	}
	conns, ok := h.clients[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.clients[c.UserID] = conns
	}
	conns[c.ID] = c
	metrics.ConnectionsActive.Inc()
	return nil
}

// Leave removes c and closes its send channel. It reports whether c was
// still registered.
func (h *Hub) Leave(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[c.UserID]
	if !ok || conns[c.ID] != c {
		return false
	}
	delete(conns, c.ID)
	if len(conns) == 0 {
		delete(h.clients, c.UserID)
	}
	close(c.send)
	metrics.ConnectionsActive.Dec()
	return true
}

// Connections returns the connection ids registered for userID.
func (h *Hub) Connections(userID uuid.UUID) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients[userID]))
	for id := range h.clients[userID] {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// PushToUser queues an event on every connection of userID.
func (h *Hub) PushToUser(userID uuid.UUID, event string, payload interface{}) int {
	frame, err := models.NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", event, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, c := range h.clients[userID] {
		if h.enqueue(c, event, frame) {
			sent++
		}
	}
	return sent
}

// Broadcast queues an event on every connection except those of exclude.
func (h *Hub) Broadcast(event string, payload interface{}, exclude uuid.UUID) int {
	frame, err := models.NewEnvelope(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", event, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for userID, conns := range h.clients {
		if userID == exclude {
			continue
		}
		for _, c := range conns {
			if h.enqueue(c, event, frame) {
				sent++
			}
		}
	}
	return sent
}

// send queues a frame on a single connection.
func (h *Hub) send(c *Client, event string, frame []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if conns := h.clients[c.UserID]; conns == nil || conns[c.ID] != c {
		return ErrClientClosed
	}
	if !h.enqueue(c, event, frame) {
		return ErrSlowConsumer
	}
	return nil
}

// enqueue must be called with at least the read lock held.
func (h *Hub) enqueue(c *Client, event string, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		metrics.FanoutDropped.Inc()
		h.logger.Warn("Dropping event for slow connection",
			"event", event, "user_id", c.UserID, "connection_id", c.ID, "error", ErrSlowConsumer)
		return false
	}
}

// Shutdown refuses new connections and closes every live one. The read
// pumps observe the closed sockets and run their own cleanup.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, conns := range h.clients {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.closeConn()
	}
	h.logger.Info("Hub shut down", "connections", len(all))
}
