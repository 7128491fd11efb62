package transport

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotConnected is returned by Emit on a closed or never-opened channel.
var ErrNotConnected = errors.New("not connected")

// HandlerFunc handles the payload of a single named event.
type HandlerFunc func(payload json.RawMessage)

// AnyHandlerFunc observes every inbound event regardless of name.
type AnyHandlerFunc func(event string, payload json.RawMessage)

// Handle is a single live channel connection. At most one exists per
// process; the connection manager owns its lifetime.
type Handle interface {
	// ID returns the client-generated connection identifier.
	ID() string

	// On registers the handler for a named event, replacing any previous one.
	On(event string, h HandlerFunc)

	// Off removes the handler for a named event.
	Off(event string)

	// OnAny adds an observer invoked for every inbound event.
	OnAny(h AnyHandlerFunc)

	// Emit sends a named event with a JSON-encodable payload.
	Emit(event string, payload any) error

	// Disconnect closes the connection. Safe to call more than once.
	Disconnect() error

	// Connected reports current connection state.
	Connected() bool

	// Errors returns a channel receiving the terminal transport error.
	Errors() <-chan error

	// Done returns a channel closed when Disconnect is called. A connection
	// dropped by the peer reports through Errors, not Done.
	Done() <-chan struct{}
}

// Options configures a Dial.
type Options struct {
	Token            string        // session token, attached as connect metadata
	UserID           string        // attached as connect metadata
	Role             string        // attached as connect metadata
	HandshakeTimeout time.Duration // dial timeout
	PingInterval     time.Duration // keepalive ping cadence
	PingTimeout      time.Duration // max silence before the connection is stale
	WriteTimeout     time.Duration // write deadline for sends
}

// DefaultOptions returns sensible defaults. Auth fields must be filled in
// by the caller.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      30 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// frame is the wire format: one JSON object per message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrStaleConnection is reported when no ping or pong arrives within
// PingTimeout.
var ErrStaleConnection = errors.New("connection stale (no ping)")
