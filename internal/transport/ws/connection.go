package ws

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Connection wraps a gorilla websocket connection behind a single serialized
// write path, so events belonging to one session are never interleaved.
type Connection struct {
	id     string
	socket *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

// NewConnection creates a tracked websocket connection.
func NewConnection(id string, socket *websocket.Conn) *Connection {
	return &Connection{
		id:     id,
		socket: socket,
	}
}

// WriteMessage sends a message to the client.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("connection %s already closed", c.id)
	}

	return c.socket.WriteMessage(messageType, data)
}

// WriteText sends a text frame to the client.
func (c *Connection) WriteText(data []byte) error {
	return c.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage blocks until the next client frame arrives or the connection fails.
func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.socket.ReadMessage()
}

// Close terminates the underlying websocket connection.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// GetID returns the session identifier.
func (c *Connection) GetID() string {
	return c.id
}

// IsClosed reports whether the connection has already been closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}
