// Package transport implements the event channel over WebSocket. Messages
// are JSON frames carrying an event name and payload; consumers register
// per-event handlers on the returned Handle.
//
// All handlers run on the single read goroutine, in delivery order. A
// handler that blocks stalls the channel, so handlers must only hand work
// off (dispatching an action is fine).
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// channel implements the Handle interface.
type channel struct {
	id     string
	opts   Options
	logger *slog.Logger

	conn *websocket.Conn

	errs chan error
	done chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State + handler table
	mu          sync.RWMutex
	connected   bool
	closed      bool
	lastPingAt  time.Time
	handlers    map[string]HandlerFunc
	anyHandlers []AnyHandlerFunc
}

// Dial establishes a channel connection with the session metadata attached
// as handshake headers.
func Dial(ctx context.Context, url string, opts Options, logger *slog.Logger) (Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	c := &channel{
		id:       id,
		opts:     opts,
		logger:   logger.With("channel_id", id),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		handlers: make(map[string]HandlerFunc),
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.UserID != "" {
		header.Set("X-User-Id", opts.UserID)
	}
	if opts.Role != "" {
		header.Set("X-User-Role", opts.Role)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server-initiated ping: respond with pong and note liveness.
	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server response to our keepalive ping.
	conn.SetPongHandler(func(data string) error {
		c.mu.Lock()
		c.lastPingAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Debug("channel connected", "url", url)

	return c, nil
}

// ID returns the connection identifier.
func (c *channel) ID() string {
	return c.id
}

// On registers the handler for a named event.
func (c *channel) On(event string, h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for a named event.
func (c *channel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// OnAny adds a wildcard observer.
func (c *channel) OnAny(h AnyHandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anyHandlers = append(c.anyHandlers, h)
}

// Emit sends a named event.
func (c *channel) Emit(event string, payload any) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = b
	}

	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Disconnect closes the connection. Repeat calls are no-ops.
func (c *channel) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// Connected reports current connection state.
func (c *channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Errors returns the terminal error channel.
func (c *channel) Errors() <-chan error {
	return c.errs
}

// Done returns the local-close signal channel.
func (c *channel) Done() <-chan struct{} {
	return c.done
}

// readLoop reads frames and invokes handlers in delivery order.
func (c *channel) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Disconnect() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errs <- err:
				default:
				}
				return
			}
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("unparseable frame", "error", err)
			continue
		}
		if f.Event == "" {
			c.logger.Warn("frame without event name")
			continue
		}

		c.mu.RLock()
		handler := c.handlers[f.Event]
		observers := c.anyHandlers
		c.mu.RUnlock()

		for _, obs := range observers {
			obs(f.Event, f.Data)
		}
		if handler != nil {
			handler(f.Data)
		}
	}
}

// heartbeatLoop sends keepalive pings and detects stale connections.
func (c *channel) heartbeatLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if conn != nil {
				deadline := time.Now().Add(c.opts.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
					c.logger.Debug("failed to send ping", "error", err)
				}
			}

			if time.Since(lastPing) > c.opts.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.opts.PingTimeout,
				)
				select {
				case c.errs <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
