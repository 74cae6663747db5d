// Package relay routes one-to-one messages between connected chatline clients.
package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatline/internal/protocol"
	"go.uber.org/zap"
)

// client is one authenticated WebSocket session.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// enqueue queues a frame. A client whose buffer is full is disconnected.
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.close()
		return false
	}
}

// enqueueWait queues a frame, waiting for buffer space instead of disconnecting. It fails
// once the client is closed.
func (c *client) enqueueWait(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	}
}

// Hub tracks who is online. A user has at most one live session; a new hello replaces
// the previous one.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	lastSeen map[string]time.Time
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*client),
		lastSeen: make(map[string]time.Time),
		logger:   logger,
	}
}

// register makes c the live session for its user and returns the one it replaced.
func (h *Hub) register(c *client) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	return prev
}

// unregister removes c if it is still the live session. It reports whether the user went
// offline.
func (h *Hub) unregister(c *client, at time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] != c {
		return false
	}
	delete(h.clients, c.userID)
	h.lastSeen[c.userID] = at
	return true
}

func (h *Hub) get(userID string) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[userID]
	return c, ok
}

// Online returns the connected users, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LastSeen returns when userID last disconnected.
func (h *Hub) LastSeen(userID string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.lastSeen[userID]
	return t, ok
}

// sendTo queues a frame for userID if it is online.
func (h *Hub) sendTo(userID string, t protocol.Type, ref string, data any) bool {
	c, ok := h.get(userID)
	if !ok {
		return false
	}
	frame, err := protocol.Encode(t, ref, data)
	if err != nil {
		h.logger.Error("encode frame", zap.String("type", string(t)), zap.Error(err))
		return false
	}
	return c.enqueue(frame)
}

// broadcast queues a frame for every online user except one.
func (h *Hub) broadcast(except string, t protocol.Type, data any) {
	frame, err := protocol.Encode(t, "", data)
	if err != nil {
		h.logger.Error("encode frame", zap.String("type", string(t)), zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(frame)
	}
}
