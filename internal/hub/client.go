package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-comms/internal/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer. Attachments arrive inline as
	// base64 data URIs, so this is generous.
	maxMessageSize = 512 * 1024
	// Outbound buffer per connection. When it fills, the connection is
	// dropped instead of blocking the sender.
	sendBufferSize = 256
)

// Client is a single live connection owned by the registry: one websocket,
// one identity, one buffered outbound queue.
type Client struct {
	id       string
	identity auth.Identity

	hub    *Hub
	router *Router
	conn   *websocket.Conn
	logger zerolog.Logger

	send chan []byte

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// enqueue places data on the outbound queue. It reports false when the
// buffer is full or the connection is already closed; it never blocks.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close deregisters the connection and tears it down. Safe to call from any
// goroutine, any number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		// Deregister first so no further broadcast targets this connection.
		c.hub.Deregister(c)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump pumps inbound envelopes from the websocket into the router.
// Dispatch is synchronous, so commands from one connection apply in receipt
// order; other connections run their own pumps and are unaffected.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		c.router.Dispatch(context.Background(), c, message)
	}
}

// writePump pumps queued envelopes to the websocket and keeps the connection
// alive with pings. Envelopes leave in the order they were enqueued.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
