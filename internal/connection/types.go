package connection

import (
	"errors"
	"time"
)

// Errors
var (
	// ErrMaxRetriesExceeded marks a channel instance as terminated after the
	// retry cap. Recovery requires an explicit Reconnect.
	ErrMaxRetriesExceeded = errors.New("max reconnect attempts exceeded")

	// ErrTerminated is returned by Connect while the manager is in
	// StateTerminated.
	ErrTerminated = errors.New("connection terminated, explicit reconnect required")
)

// State is the connection lifecycle state, exclusively owned by the
// Manager.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateTerminated   State = "terminated"
)

// Status is the read-only projection of connection health for consumers.
// Polling it has no side effects.
type Status struct {
	IsConnected       bool
	ConnectionID      string // empty when no live handle exists
	ReconnectAttempts int
}

// Config configures the Manager.
type Config struct {
	URL                  string        // channel endpoint
	MaxReconnectAttempts int           // retry cap before Terminated
	ReconnectBaseDelay   time.Duration // first retry delay
	ReconnectMaxDelay    time.Duration // retry delay ceiling
	SettleDelay          time.Duration // wait after connect before activating subscriptions
	HandshakeTimeout     time.Duration // dial timeout
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    5 * time.Second,
		SettleDelay:          500 * time.Millisecond,
		HandshakeTimeout:     10 * time.Second,
	}
}
