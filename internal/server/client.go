// Package server manages individual WebSocket connections, handling the
// read/write pumps and lifecycle control for each client.
package server

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/roomcast/roomcast/internal/chat"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Client is one WebSocket connection. It owns the socket, a buffered send
// channel drained by the write pump, and the transport-assigned connection
// id the chat core knows it by.
type Client struct {
	id     chat.ConnectionID
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	addr   string
	closed atomic.Bool
}

// NewClient wraps a WebSocket connection with a freshly minted connection id
// and a send buffer sized from the active configuration.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		id:   chat.ConnectionID(uuid.NewString()),
		conn: conn,
		hub:  hub,
		send: make(chan []byte, cfg.SendBufferSize),
		addr: addr,
	}
}

// ID returns the connection identity the presence core tracks.
func (c *Client) ID() chat.ConnectionID {
	return c.id
}

// Deliver enqueues a payload for the write pump without blocking. It reports
// false when the client is closed or its buffer is full; the event is then
// dropped for this client only.
func (c *Client) Deliver(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump reads frames until the connection dies and feeds each one to the
// coordinator. The deferred unregister surfaces disconnect exactly once.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.hub.coordinator.HandleEvent(c.id, raw)
	}
}

// logReadError keeps expected disconnects quiet and surfaces the rest.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn().Str("addr", c.addr).Msg("frame exceeded maximum message size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure),
		errors.Is(err, io.EOF),
		isExpectedCloseError(err):
		log.Debug().Str("addr", c.addr).Err(err).Msg("client disconnected")
	default:
		log.Warn().Str("addr", c.addr).Err(err).Msg("websocket read error")
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					log.Debug().Str("addr", c.addr).Err(err).Msg("websocket write error")
				}
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError reports whether an error is routine connection
// teardown rather than something worth logging loudly.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	for _, expected := range []string{
		"use of closed network connection",
		"websocket: close sent",
		"broken pipe",
	} {
		if strings.Contains(msg, expected) {
			return true
		}
	}
	return false
}
