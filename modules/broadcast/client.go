package broadcast

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
)

// DefaultSendBuffer is the outbound queue length of a client.
const DefaultSendBuffer = 256

// Transport is the write side of a live connection.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one live connection. Writes are queued and drained by WritePump so
// a slow peer never blocks a broadcast.
type Client struct {
	ID string

	conn      Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	failed    atomic.Bool
}

// NewClient creates a client around conn.
func NewClient(id string, conn Transport, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Send queues data for the client. It reports false when the client is closed,
// its transport has failed, or its queue is full.
func (c *Client) Send(data []byte) bool {
	if c.failed.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		log.Printf("[hub] Dropping message for client %s: send queue full", c.ID)
		return false
	}
}

// WritePump drains the send queue into the transport until the client is
// closed or a write fails.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[hub] Failed to send to client %s: %v", c.ID, err)
				c.failed.Store(true)
				c.Close()
				return
			}
		}
	}
}

// Close stops the write pump. It does not close the transport.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Failed reports whether a write to the transport has failed.
func (c *Client) Failed() bool {
	return c.failed.Load()
}
