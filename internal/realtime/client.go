package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one websocket connection belonging to one authenticated user.
type Client struct {
	id     string
	userID string
	role   string
	conn   *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte

	closeOnce sync.Once
}

func NewClient(userID, role string, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		role:   role,
		conn:   conn,
		send:   make(chan []byte, 64),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }
func (c *Client) Role() string   { return c.role }

// Enqueue hands a payload to the write pump without blocking. Fan-out works
// on registry snapshots that may outlive the connection, so a handle whose
// client has since closed must refuse instead of panicking; the mutex makes
// Enqueue and Close mutually safe. A full send buffer also returns false:
// the client is too slow to keep, and the caller decides what to do with it.
func (c *Client) Enqueue(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// WritePump drains the send channel onto the wire until the channel closes or
// a write fails.
func (c *Client) WritePump() {
	if c.conn == nil {
		return
	}
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// ReadPump discards inbound frames; its job is detecting the close. It
// unregisters the client on the way out so connections dropped by network
// failure are still cleaned up.
func (c *Client) ReadPump(h *Hub) {
	if c.conn == nil {
		return
	}
	defer h.Unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
