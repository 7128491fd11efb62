// Package store implements the application state store boundary. The
// channel layer never mutates state directly; it dispatches named actions.
// Auth-scoped actions are reduced here, domain actions are fanned out
// verbatim to subscribers (the UI layer and other consumers).
package store

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Auth-scoped action types owned by this package.
const (
	ActionSessionEstablished   = "auth/sessionEstablished"
	ActionSessionForciblyEnded = "auth/sessionForciblyEnded"
)

// Action is a named state mutation with an opaque payload.
type Action struct {
	Type    string
	Payload json.RawMessage
}

// Dispatcher is the write side of the store, consumed by the router and the
// forced-termination handler.
type Dispatcher interface {
	Dispatch(a Action)
}

// AuthState is the auth slice of the store.
type AuthState struct {
	Authenticated bool
	UserID        string
	Role          string
	Token         string
}

// sessionPayload is the payload shape for ActionSessionEstablished.
type sessionPayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Token  string `json:"token"`
}

// Store holds the auth slice and fans out every dispatched action to
// subscribers. Publish is non-blocking: a slow subscriber loses events
// rather than stalling dispatch.
type Store struct {
	logger *slog.Logger

	mu   sync.RWMutex
	auth AuthState
	subs map[chan Action]struct{}
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger,
		subs:   make(map[chan Action]struct{}),
	}
}

// Dispatch reduces auth actions and forwards every action to subscribers,
// in dispatch order.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	switch a.Type {
	case ActionSessionEstablished:
		var p sessionPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			s.logger.Warn("bad session payload", "error", err)
		} else {
			s.auth = AuthState{
				Authenticated: true,
				UserID:        p.UserID,
				Role:          p.Role,
				Token:         p.Token,
			}
		}

	case ActionSessionForciblyEnded:
		// Resetting an already-cleared slice is a no-op.
		s.auth = AuthState{}
	}

	for ch := range s.subs {
		select {
		case ch <- a:
		default:
			// slow subscriber, drop
		}
	}
	s.mu.Unlock()

	s.logger.Debug("dispatched", "action", a.Type)
}

// Auth returns a copy of the current auth slice.
func (s *Store) Auth() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth
}

// Subscribe returns a buffered channel receiving every dispatched action.
func (s *Store) Subscribe() chan Action {
	ch := make(chan Action, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(ch chan Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}
