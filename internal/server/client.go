// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle signaling for each connection.
package server

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
)

// Client represents one WebSocket connection. It carries the join request
// (desired name and room) until the hub binds a session, and buffers outbound
// payloads so the hub never blocks on a slow peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	desiredName string
	roomName    string

	// abnormal records whether the connection ended with an unexpected
	// transport error rather than a normal close. Written by readPump and
	// read by the hub during cleanup; atomic because an eviction can run
	// cleanup while readPump is still alive.
	abnormal atomic.Bool
}

// NewClient wraps a WebSocket connection bound for the given room. The send
// channel is buffered; a full buffer marks the connection dead on the next
// delivery attempt.
func NewClient(conn *websocket.Conn, hub *Hub, addr, desiredName, roomName string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		conn:        conn,
		send:        make(chan []byte, cfg.SendBufferSize),
		hub:         hub,
		addr:        addr,
		desiredName: desiredName,
		roomName:    roomName,
	}
}

// enqueue queues an outbound payload without blocking. It reports false when
// the buffer is full or the channel is already closed by cleanup.
func (c *Client) enqueue(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) setupReadConnection() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// classifyReadError reports whether the error represents an unexpected
// transport failure, as opposed to a normal or expected close.
func (c *Client) classifyReadError(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		return false
	}
	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		return false
	}
	return true
}

// readPump receives payloads from the peer and hands them to the hub until
// the connection errors or closes, then signals the hub to clean up.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.hub.log.Warn("error closing connection in readPump", "addr", c.addr, "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			abnormal := c.classifyReadError(err)
			c.abnormal.Store(abnormal)
			if abnormal {
				c.hub.log.Warn("websocket read error", "addr", c.addr, "err", err)
			} else {
				c.hub.log.Debug("client disconnected", "addr", c.addr, "err", err)
			}
			return
		}
		c.hub.HandleInbound(c, raw)
	}
}

// writePump drains the send buffer to the peer and keeps the connection alive
// with periodic pings. It exits when the send channel is closed by cleanup or
// a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.hub.log.Warn("error closing connection in writePump", "addr", c.addr, "err", err)
		}
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !isExpectedCloseError(err) {
					c.hub.log.Warn("websocket write error", "addr", c.addr, "err", err)
				}
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
