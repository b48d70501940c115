package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Client is one live connection of an authenticated user.
type Client struct {
	ID          string
	UserID      uuid.UUID
	DisplayName string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *utils.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, displayName string, bufferSize int, logger *utils.Logger) *Client {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Client{
		ID:          id,
		UserID:      userID,
		DisplayName: displayName,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, bufferSize),
		logger:      logger.With("user_id", userID, "connection_id", id),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is cancelled when the connection goes away.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Emit queues an event on this connection only.
func (c *Client) Emit(event string, payload interface{}) error {
	frame, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return c.hub.send(c, event, frame)
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump reads frames until the connection fails and hands each one to
// dispatch. Events of one connection are handled in arrival order.
func (c *Client) readPump(dispatch func(*Client, models.Envelope)) {
	defer c.closeConn()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Unexpected websocket close", "error", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			if emitErr := c.Emit(models.EventError, models.ErrorPayload{Error: "malformed frame"}); emitErr != nil {
				c.logger.Debug("Failed to report malformed frame", "error", emitErr)
			}
			continue
		}
		dispatch(c, env)
	}
}

// writePump drains the send channel to the socket and keeps the connection
// alive with pings. It exits when the hub closes the channel.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
