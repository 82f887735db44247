// Package transport is the default WebSocket opener the core can bundle as
// a convenience. The core itself never imports this package directly in
// its strict design (it only consumes a binary bidirectional message
// stream); cmd/example wires this transport into the client facade.
//
// Unlike the teacher's exchange.WSFeed, Conn does not auto-reconnect: the
// protocol engine surfaces a Disconnected event for a higher layer to act
// on, and silently reconnecting underneath it would swallow that signal.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second
)

// Conn is a single binary-message WebSocket connection. It is safe for one
// concurrent reader and one concurrent writer (the session's reader/writer
// tasks), matching the concurrency model the protocol engine assumes.
type Conn struct {
	conn   *websocket.Conn
	connMu sync.Mutex
	logger *slog.Logger
}

// Dial opens a WebSocket connection to url. It does not retry and does not
// reconnect; callers that want reconnection implement it themselves using
// the Disconnected signal the session layer emits.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return &Conn{conn: conn, logger: logger.With("component", "transport")}, nil
}

// ReadMessage blocks for the next binary frame. A read deadline bounds how
// long a silent server can hold the reader before it's treated as dead.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("transport: read: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			c.logger.Debug("ignoring non-binary websocket message", "type", msgType)
			continue
		}
		return data, nil
	}
}

// WriteMessage sends one binary frame.
func (c *Conn) WriteMessage(data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn.Close()
}
