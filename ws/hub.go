package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Publisher is what services see of the hub. Every method is non-blocking
// and returns how many sessions the frame was queued for.
type Publisher interface {
	PushToUser(userID string, event Event) int
	PushToAll(event Event) int
	PushToSession(sessionID string, event Event) bool
}

var _ Publisher = (*Hub)(nil)

// Hub is the in-memory registry of live sessions. It is built empty at
// process start and torn down by Shutdown; nothing in it is persisted.
//
// A user may hold any number of sessions (tabs, devices). Sessions are only
// ever removed individually, so dropping one never affects the others.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{} // userID → sessions
	sessions map[string]*Client              // sessionID → session
	closed   bool

	seq    atomic.Int64
	logger *zap.Logger

	onSessionOpen func(c *Client)
}

// NewHub returns an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		sessions: make(map[string]*Client),
		logger:   logger.Named("ws"),
	}
}

// OnSessionOpen sets a callback run synchronously right after a session is
// registered and before its pumps start. The hub owner uses it to send the
// ready frame.
func (h *Hub) OnSessionOpen(fn func(c *Client)) {
	h.onSessionOpen = fn
}

// Register creates a session for userID over conn. conn may be nil in tests,
// in which case frames stay in the send buffer.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Client {
	c := &Client{
		hub:           h,
		conn:          conn,
		sessionID:     uuid.NewString(),
		userID:        userID,
		establishedAt: time.Now(),
		send:          make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(c.send)
		return c
	}
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.sessions[c.sessionID] = c
	total := len(h.clients[userID])
	h.mu.Unlock()

	h.logger.Debug("session opened",
		zap.String("user_id", userID),
		zap.String("session_id", c.sessionID),
		zap.Int("user_sessions", total),
	)

	if h.onSessionOpen != nil {
		h.onSessionOpen(c)
	}
	return c
}

// Disconnect closes one session. It reports false when the session is
// unknown, which makes it safe to call repeatedly.
func (h *Hub) Disconnect(sessionID string) bool {
	h.mu.RLock()
	c, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.unregister(c)
}

// unregister removes c and closes its send channel. Only the call that
// actually removes c closes the channel.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return false
	}

	delete(clients, c)
	delete(h.sessions, c.sessionID)
	close(c.send)
	remaining := len(clients)
	if remaining == 0 {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	h.logger.Debug("session closed",
		zap.String("user_id", c.userID),
		zap.String("session_id", c.sessionID),
		zap.Int("user_sessions", remaining),
		zap.Duration("lifetime", time.Since(c.establishedAt)),
	)
	return true
}

// PushToUser queues event for every session of userID.
func (h *Hub) PushToUser(userID string, event Event) int {
	data, ok := h.encode(event)
	if !ok {
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	delivered, slow := h.deliverLocked(targets, data)
	h.mu.RUnlock()

	h.dropSlow(slow)
	return delivered
}

// PushToAll queues event for every live session.
func (h *Hub) PushToAll(event Event) int {
	data, ok := h.encode(event)
	if !ok {
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.sessions))
	for _, c := range h.sessions {
		targets = append(targets, c)
	}
	delivered, slow := h.deliverLocked(targets, data)
	h.mu.RUnlock()

	h.dropSlow(slow)
	return delivered
}

// PushToSession queues event for a single session.
func (h *Hub) PushToSession(sessionID string, event Event) bool {
	data, ok := h.encode(event)
	if !ok {
		return false
	}

	h.mu.RLock()
	c, exists := h.sessions[sessionID]
	if !exists {
		h.mu.RUnlock()
		return false
	}
	delivered, slow := h.deliverLocked([]*Client{c}, data)
	h.mu.RUnlock()

	h.dropSlow(slow)
	return delivered == 1
}

// deliverLocked must run under at least the read lock, which guarantees no
// send channel in targets is closed concurrently.
func (h *Hub) deliverLocked(targets []*Client, data []byte) (int, []*Client) {
	delivered := 0
	var slow []*Client
	for _, c := range targets {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	return delivered, slow
}

// dropSlow disconnects sessions whose buffer was full. They are expected to
// reconnect and resync over HTTP.
func (h *Hub) dropSlow(slow []*Client) {
	for _, c := range slow {
		h.logger.Warn("send buffer full, dropping session",
			zap.String("user_id", c.userID),
			zap.String("session_id", c.sessionID),
		)
		h.unregister(c)
	}
}

func (h *Hub) encode(event Event) ([]byte, bool) {
	event.Seq = h.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("op", event.Op), zap.Error(err))
		return nil, false
	}
	return data, true
}

// Shutdown closes every session and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for c := range clients {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.sessions = make(map[string]*Client)
	h.closed = true

	h.logger.Info("hub shut down, all sessions closed")
}
