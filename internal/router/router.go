// Package router is the single place where inbound channel events are
// registered and dispatched to the state store. Registration is guarded per
// handle: attaching twice to the same handle never double-registers.
//
// The router's contract is dispatch-only. User-facing side effects of
// routed events (low-stock alerts, coupon notices) belong to the consuming
// UI layer.
package router

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/novamart/realtime/internal/store"
	"github.com/novamart/realtime/internal/transport"
)

// ObserverFunc records an inbound event for diagnostics. Observers see
// every event, including ones outside the catalog, and do not affect
// dispatch.
type ObserverFunc func(event string, payload json.RawMessage)

// ForcedLogoutFunc receives a forced-termination event.
type ForcedLogoutFunc func(event string, payload json.RawMessage)

// Stats contains runtime counters.
type Stats struct {
	EventsReceived int64
	Dispatched     int64
}

// Router registers listeners on channel handles and forwards events to the
// store as semantically named actions.
type Router struct {
	logger *slog.Logger

	mu        sync.Mutex
	attached  map[string]struct{} // handle ID → handlers registered
	observers []ObserverFunc
	forced    ForcedLogoutFunc

	statsMu    sync.Mutex
	received   int64
	dispatched int64
}

// New creates a Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:   logger,
		attached: make(map[string]struct{}),
	}
}

// AddObserver adds a wildcard observer. Must be called before Attach.
func (r *Router) AddObserver(fn ObserverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// SetForcedLogoutHandler routes the force-logout events to the termination
// handler. Must be called before Attach.
func (r *Router) SetForcedLogoutHandler(fn ForcedLogoutFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced = fn
}

// Attach registers exactly one listener per catalog event on the handle.
// The registration record is checked and set under the lock before any
// handler is installed, so a second Attach on the same handle is a logged
// no-op even if both calls race.
func (r *Router) Attach(h transport.Handle, d store.Dispatcher) {
	r.mu.Lock()
	if _, ok := r.attached[h.ID()]; ok {
		r.mu.Unlock()
		r.logger.Info("handlers already registered, skipping", "channel_id", h.ID())
		return
	}
	r.attached[h.ID()] = struct{}{}
	observers := r.observers
	forced := r.forced
	r.mu.Unlock()

	if len(observers) > 0 {
		h.OnAny(func(event string, payload json.RawMessage) {
			for _, obs := range observers {
				obs(event, payload)
			}
		})
	}

	for event, action := range catalog {
		event, action := event, action
		h.On(event, func(payload json.RawMessage) {
			r.statsMu.Lock()
			r.received++
			r.dispatched++
			r.statsMu.Unlock()

			d.Dispatch(store.Action{Type: action, Payload: payload})
		})
	}

	if forced != nil {
		for _, event := range []string{EventUserForceLogout, EventAgencyForceLogout} {
			event := event
			h.On(event, func(payload json.RawMessage) {
				r.statsMu.Lock()
				r.received++
				r.statsMu.Unlock()

				forced(event, payload)
			})
		}
	}

	r.logger.Debug("handlers registered",
		"channel_id", h.ID(),
		"events", len(catalog),
	)
}

// Detach forgets the registration record for a discarded handle. A new
// handle gets a fresh ID, so this only bounds the record map; it does not
// unregister anything from the dead handle.
func (r *Router) Detach(handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attached, handleID)
}

// Stats returns current counters.
func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return Stats{
		EventsReceived: r.received,
		Dispatched:     r.dispatched,
	}
}
