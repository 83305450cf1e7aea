// Package websocket adapts gorilla WebSocket connections to the
// domain.Connection handle the hub owns. The adapter does no frame
// inspection; heartbeating belongs to the hub, not the transport.
package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KasumiMercury/reacomp-weaver/domain"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

var (
	// ErrQueueFull reports a client whose outbound queue cannot keep up;
	// the hub treats it like any other send failure and evicts.
	ErrQueueFull = errors.New("websocket: outbound queue full")
	// ErrConnClosed reports a send after the connection shut down.
	ErrConnClosed = errors.New("websocket: connection closed")
)

// Conn wraps one gorilla connection: inbound frames are pumped into the
// room, outbound frames are queued so the hub never blocks on a slow client.
type Conn struct {
	id   string
	ws   *websocket.Conn
	room domain.Room
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewConn wraps an already-upgraded connection under the given stable ID.
func NewConn(id string, ws *websocket.Conn, maxMessageSize int64) *Conn {
	ws.SetReadLimit(maxMessageSize)
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
}

// ID returns the stable identifier the hub keys this connection by.
func (c *Conn) ID() string { return c.id }

// Send queues one frame without blocking. A full queue or a closed
// connection is a delivery failure.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close shuts the connection down; safe to call repeatedly.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	return c.ws.Close()
}

// Start attaches the accepted connection to its room and begins pumping.
func (c *Conn) Start(room domain.Room) {
	c.room = room
	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer c.room.Teardown(c.id)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("read error", "clientId", c.id, "error", err)
			}
			return
		}
		c.room.Dispatch(c.id, data)
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()

	for data := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("write error", "clientId", c.id, "error", err)
			return
		}
	}

	// Queue closed by Close: tell the peer before the deferred close.
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, []byte{})
}
