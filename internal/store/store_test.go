package store

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDispatch_SessionEstablished(t *testing.T) {
	s := New(nil)

	s.Dispatch(Action{
		Type:    ActionSessionEstablished,
		Payload: json.RawMessage(`{"userId":"u-1","role":"customer","token":"tok"}`),
	})

	auth := s.Auth()
	if !auth.Authenticated {
		t.Error("should be authenticated")
	}
	if auth.UserID != "u-1" || auth.Role != "customer" || auth.Token != "tok" {
		t.Errorf("auth = %+v", auth)
	}
}

func TestDispatch_SessionForciblyEnded(t *testing.T) {
	s := New(nil)

	s.Dispatch(Action{
		Type:    ActionSessionEstablished,
		Payload: json.RawMessage(`{"userId":"u-1","role":"admin","token":"tok"}`),
	})
	s.Dispatch(Action{Type: ActionSessionForciblyEnded})

	if auth := s.Auth(); auth != (AuthState{}) {
		t.Errorf("auth slice should be reset, got %+v", auth)
	}

	// Ending an already-ended session is a no-op.
	s.Dispatch(Action{Type: ActionSessionForciblyEnded})
	if auth := s.Auth(); auth != (AuthState{}) {
		t.Errorf("auth slice should stay reset, got %+v", auth)
	}
}

func TestDispatch_BadSessionPayload(t *testing.T) {
	s := New(nil)

	s.Dispatch(Action{
		Type:    ActionSessionEstablished,
		Payload: json.RawMessage(`{not json`),
	})

	if s.Auth().Authenticated {
		t.Error("bad payload should not authenticate")
	}
}

func TestSubscribe_ReceivesActions(t *testing.T) {
	s := New(nil)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	s.Dispatch(Action{
		Type:    "orders/applyStatusUpdate",
		Payload: json.RawMessage(`{"orderId":"O1","status":"delivered"}`),
	})

	select {
	case a := <-ch:
		if a.Type != "orders/applyStatusUpdate" {
			t.Errorf("Type = %s", a.Type)
		}
		if string(a.Payload) != `{"orderId":"O1","status":"delivered"}` {
			t.Errorf("Payload = %s", a.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive action")
	}
}

func TestSubscribe_SlowSubscriberDropped(t *testing.T) {
	s := New(nil)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	// Overfill the buffer; dispatch must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			s.Dispatch(Action{Type: "notifications/applyIncoming"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on slow subscriber")
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	s := New(nil)
	ch := s.Subscribe()
	s.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}

	// Double unsubscribe is safe.
	s.Unsubscribe(ch)
}
