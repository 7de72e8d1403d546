package websocket

import (
	"sync"
	"time"

	"companion-be/pkg/store"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Audio turns arrive base64 encoded in a single frame.
	maxMessageSize = 4 << 20
	sendBuffer     = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID   string
	Room string
	Role store.Role

	// The websocket connection. Nil in tests.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, id, room string, role store.Role) *Client {
	return &Client{ID: id, Room: room, Role: role, Conn: conn, Send: make(chan []byte, sendBuffer)}
}

func (c *Client) accepts(a Audience) bool {
	switch a {
	case AudienceOperators:
		return c.Role == store.RoleOperator
	case AudienceClients:
		return c.Role == store.RoleClient
	}
	return true
}

// trySend never blocks: a full buffer or a closed client drops the message.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// close reports whether this call did the closing.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.Send)
	return true
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readPump queues every text frame for onMessage, which sees them one at a time
// in order, until the connection fails.
func (c *Client) readPump(hub *Hub, onMessage func([]byte)) {
	in := newInbox(onMessage)
	defer func() {
		hub.Unregister(c)
		c.Conn.Close()
		in.close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Warn("Hub", "Unexpected close", map[string]interface{}{"connection_id": c.ID, "error": err.Error()})
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !in.push(data) {
			hub.logger.Warn("Hub", "Inbound backlog full, frame dropped", map[string]interface{}{"connection_id": c.ID})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
