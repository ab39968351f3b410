package notifications

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"helpboard/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBufferSize = 256
)

var dropNotice = []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)

// WSHub is an interface for hubs that manage generic clients
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is a middleman between the websocket connection and a hub.
type Client struct {
	Hub WSHub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// ConnID identifies the connection in logs and in the attribute store.
	ConnID string

	// IncomingHandler processes one inbound frame. A non-nil error ends the
	// read loop and closes the connection once pending frames are flushed.
	IncomingHandler func(*Client, []byte) error

	userID    atomic.Uint64
	closeSend sync.Once
	done      chan struct{}
}

// NewClient creates a new Client instance
func NewClient(hub WSHub, conn *websocket.Conn, connID string) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		ConnID: connID,
		Send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// UserID is the authenticated subject, or 0 before CONNECT.
func (c *Client) UserID() uint {
	return uint(c.userID.Load())
}

// SetUserID records the authenticated subject for logging.
func (c *Client) SetUserID(id uint) {
	c.userID.Store(uint64(id))
}

// ReadPump pumps messages from the websocket connection to the handler.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		c.CloseSend()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("ReadPump Error (conn %s, user %d): %v", c.ConnID, c.UserID(), err)
			}
			return
		}

		if c.IncomingHandler != nil {
			if err := c.IncomingHandler(c, message); err != nil {
				return
			}
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		if c.done != nil {
			close(c.done)
		}
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CloseSend closes the outbound channel once. WritePump flushes what is
// queued, sends a close frame and exits.
func (c *Client) CloseSend() {
	c.closeSend.Do(func() { close(c.Send) })
}

// Wait blocks until WritePump has exited or timeout passes.
func (c *Client) Wait(timeout time.Duration) {
	if c.done == nil {
		return
	}
	select {
	case <-c.done:
	case <-time.After(timeout):
	}
}

// TrySend attempts to send a message to the client, handling closed channels and full buffers
func (c *Client) TrySend(message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hubName(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
		return true
	default:
		// Buffer full, drop message and notify client so it can re-fetch
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hubName(), "full").Inc()
		log.Printf("Client %s (%s): Buffer full, dropped message", c.ConnID, c.hubName())

		select {
		case c.Send <- dropNotice:
		default:
		}
		return false
	}
}

func (c *Client) hubName() string {
	if c.Hub == nil {
		return "none"
	}
	return c.Hub.Name()
}
