package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is three missed 30s heartbeats.
	pongWait = 90 * time.Second

	// maxMessageSize caps inbound frames. Clients only send heartbeats.
	maxMessageSize = 4096

	// sendBufferSize is the per-session queue. A full queue drops the session.
	sendBufferSize = 256
)

// Client is one websocket session. A user with three tabs has three clients.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	sessionID     string
	userID        string
	establishedAt time.Time

	send chan []byte
	mu   sync.Mutex // serializes conn writes
}

// SessionID identifies the session for targeted pushes and Disconnect.
func (c *Client) SessionID() string { return c.sessionID }

// UserID is the authenticated owner of the session.
func (c *Client) UserID() string { return c.userID }

// ReadPump reads client frames until the connection fails or the heartbeat
// deadline passes, then unregisters the session.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Info("unexpected close",
					zap.String("user_id", c.userID),
					zap.String("session_id", c.sessionID),
					zap.Error(err),
				)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.hub.logger.Debug("invalid frame", zap.String("session_id", c.sessionID), zap.Error(err))
			continue
		}
		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.hub.PushToSession(c.sessionID, Event{Op: OpHeartbeatAck})
	default:
		c.hub.logger.Debug("unknown op",
			zap.String("session_id", c.sessionID),
			zap.String("op", event.Op),
		)
	}
}

// WritePump drains the send queue onto the socket. It exits when the hub
// closes the queue or a write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
