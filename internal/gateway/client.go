package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/licitahub/atendechat/internal/logging"
)

// ErrClientClosed is returned for sends on a torn-down connection.
var ErrClientClosed = errors.New("client connection closed")

const (
	// writeWait bounds a single frame write, pings included.
	writeWait = 10 * time.Second
	// defaultPongWait is how long a peer may stay silent before the
	// connection is considered dead. Pings go out at 9/10 of it.
	defaultPongWait = 60 * time.Second
)

// Client is one authenticated WebSocket connection. It satisfies
// fanout.Conn so the engine never sees the websocket package.
type Client struct {
	connID      string
	socket      *websocket.Conn
	connectedAt time.Time
	pongWait    time.Duration
	pingPeriod  time.Duration

	mu     sync.Mutex
	closed bool
	log    *logging.Logger
}

// NewClient wraps a freshly upgraded connection.
func NewClient(conn *websocket.Conn, log *logging.Logger) *Client {
	return &Client{
		connID:      uuid.New().String(),
		socket:      conn,
		connectedAt: time.Now(),
		pongWait:    defaultPongWait,
		pingPeriod:  defaultPongWait * 9 / 10,
		log:         log,
	}
}

// ID returns the connection id assigned at handshake.
func (c *Client) ID() string { return c.connID }

// Send delivers a named event to the client. Thread-safe.
func (c *Client) Send(event string, payload any) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.socket.WriteJSON(env); err != nil {
		// A failed write means the transport is gone; flag it so the sweep
		// can reclaim the binding.
		c.closed = true
		return err
	}
	return nil
}

// Alive reports whether the transport is still open.
func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close tears down the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.socket.Close()
}

// ReadEnvelope reads the next inbound envelope.
func (c *Client) ReadEnvelope() (Envelope, error) {
	_, msg, err := c.socket.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// markClosed flags the client closed without a socket close, used when the
// read loop observes the peer going away.
func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// startKeepalive arms the ping/pong liveness check: the peer must answer a
// ping within pongWait or reads fail, and a failed ping write marks the
// connection dead immediately. Half-open TCP connections with no close
// frame are caught by one or the other.
func (c *Client) startKeepalive() {
	c.socket.SetReadDeadline(time.Now().Add(c.pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	go c.pingLoop()
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.socket.WriteMessage(websocket.PingMessage, nil)
		c.mu.Unlock()

		if err != nil {
			c.log.Debug().Err(err).Str("connId", c.connID).Msg("ping failed, connection dead")
			c.markClosed()
			c.socket.Close() // unblocks the read loop
			return
		}
	}
}
