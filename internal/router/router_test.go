package router

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/novamart/realtime/internal/store"
	"github.com/novamart/realtime/internal/transport"
)

// fakeHandle records registrations and lets tests inject inbound events.
type fakeHandle struct {
	id string

	mu       sync.Mutex
	handlers map[string][]transport.HandlerFunc
	anyFns   []transport.AnyHandlerFunc
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, handlers: make(map[string][]transport.HandlerFunc)}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) On(event string, h transport.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], h)
}

func (f *fakeHandle) Off(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

func (f *fakeHandle) OnAny(h transport.AnyHandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anyFns = append(f.anyFns, h)
}

func (f *fakeHandle) Emit(string, any) error { return nil }
func (f *fakeHandle) Disconnect() error      { return nil }
func (f *fakeHandle) Connected() bool        { return true }
func (f *fakeHandle) Errors() <-chan error   { return nil }
func (f *fakeHandle) Done() <-chan struct{}  { return nil }

// inject simulates an inbound event the way the read loop delivers one:
// observers first, then the per-event handlers.
func (f *fakeHandle) inject(event string, payload json.RawMessage) {
	f.mu.Lock()
	anyFns := f.anyFns
	handlers := f.handlers[event]
	f.mu.Unlock()

	for _, fn := range anyFns {
		fn(event, payload)
	}
	for _, h := range handlers {
		h(payload)
	}
}

// registrations returns how many handlers are installed for an event.
func (f *fakeHandle) registrations(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

// captureDispatcher records dispatched actions.
type captureDispatcher struct {
	mu      sync.Mutex
	actions []store.Action
}

func (c *captureDispatcher) Dispatch(a store.Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, a)
}

func (c *captureDispatcher) all() []store.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Action(nil), c.actions...)
}

func TestAttach_RegistersCatalog(t *testing.T) {
	r := New(nil)
	h := newFakeHandle("h-1")
	d := &captureDispatcher{}

	r.Attach(h, d)

	for _, event := range Events() {
		if n := h.registrations(event); n != 1 {
			t.Errorf("event %s has %d handlers, want 1", event, n)
		}
	}
}

func TestAttach_TwiceIsNoOp(t *testing.T) {
	r := New(nil)
	h := newFakeHandle("h-1")
	d := &captureDispatcher{}

	r.Attach(h, d)
	r.Attach(h, d)

	if n := h.registrations("order:created"); n != 1 {
		t.Fatalf("order:created has %d handlers after double attach, want 1", n)
	}

	h.inject("order:created", json.RawMessage(`{"orderId":"O1"}`))

	actions := d.all()
	if len(actions) != 1 {
		t.Fatalf("dispatched %d actions, want exactly 1", len(actions))
	}
}

func TestAttach_FreshHandleAfterDetach(t *testing.T) {
	r := New(nil)
	d := &captureDispatcher{}

	h1 := newFakeHandle("h-1")
	r.Attach(h1, d)
	r.Detach(h1.ID())

	h2 := newFakeHandle("h-2")
	r.Attach(h2, d)

	if n := h2.registrations("order:created"); n != 1 {
		t.Errorf("replacement handle has %d handlers, want 1", n)
	}
}

func TestDispatch_TranslatesEventToAction(t *testing.T) {
	r := New(nil)
	h := newFakeHandle("h-1")
	d := &captureDispatcher{}
	r.Attach(h, d)

	h.inject("order:status-updated", json.RawMessage(`{"orderId":"O1","status":"shipped"}`))

	actions := d.all()
	if len(actions) != 1 {
		t.Fatalf("dispatched %d actions, want 1", len(actions))
	}
	if actions[0].Type != "orders/applyStatusUpdate" {
		t.Errorf("action type = %s, want orders/applyStatusUpdate", actions[0].Type)
	}
	if string(actions[0].Payload) != `{"orderId":"O1","status":"shipped"}` {
		t.Errorf("payload = %s", actions[0].Payload)
	}
}

func TestForcedLogout_RoutedToHandlerNotStore(t *testing.T) {
	r := New(nil)

	var gotEvent string
	var gotPayload json.RawMessage
	r.SetForcedLogoutHandler(func(event string, payload json.RawMessage) {
		gotEvent = event
		gotPayload = payload
	})

	h := newFakeHandle("h-1")
	d := &captureDispatcher{}
	r.Attach(h, d)

	h.inject(EventUserForceLogout, json.RawMessage(`{"reason":"account_blocked"}`))

	if gotEvent != EventUserForceLogout {
		t.Errorf("forced handler got event %q", gotEvent)
	}
	if string(gotPayload) != `{"reason":"account_blocked"}` {
		t.Errorf("forced handler got payload %s", gotPayload)
	}
	if len(d.all()) != 0 {
		t.Error("force-logout must not reach the store")
	}
}

func TestObserver_SeesUncataloguedEvents(t *testing.T) {
	r := New(nil)

	var mu sync.Mutex
	var seen []string
	r.AddObserver(func(event string, payload json.RawMessage) {
		mu.Lock()
		seen = append(seen, event)
		mu.Unlock()
	})

	h := newFakeHandle("h-1")
	r.Attach(h, &captureDispatcher{})

	h.inject("order:created", json.RawMessage(`{}`))
	h.inject("totally:unknown", json.RawMessage(`{}`))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "order:created" || seen[1] != "totally:unknown" {
		t.Errorf("observer saw %v, want both events", seen)
	}
}

func TestStats_CountsReceivedAndDispatched(t *testing.T) {
	r := New(nil)
	r.SetForcedLogoutHandler(func(string, json.RawMessage) {})
	h := newFakeHandle("h-1")
	r.Attach(h, &captureDispatcher{})

	h.inject("order:created", json.RawMessage(`{}`))
	h.inject("agency:updated", json.RawMessage(`{}`))
	h.inject(EventUserForceLogout, json.RawMessage(`{}`))

	stats := r.Stats()
	if stats.EventsReceived != 3 {
		t.Errorf("EventsReceived = %d, want 3", stats.EventsReceived)
	}
	if stats.Dispatched != 2 {
		t.Errorf("Dispatched = %d, want 2", stats.Dispatched)
	}
}

func TestActionFor(t *testing.T) {
	if action, ok := ActionFor("inventory:low-stock"); !ok || action != "inventory/applyLowStock" {
		t.Errorf("ActionFor(inventory:low-stock) = %s, %v", action, ok)
	}
	if _, ok := ActionFor("no:such-event"); ok {
		t.Error("unknown event should not resolve")
	}
}
