package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BatchSize != 200 {
		t.Errorf("BatchSize = %d, want 200", cfg.BatchSize)
	}
	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("FlushInterval = %v, want 2s", cfg.FlushInterval)
	}
	if cfg.QueueSize != 2000 {
		t.Errorf("QueueSize = %d, want 2000", cfg.QueueSize)
	}
}

func TestObserve_Enqueues(t *testing.T) {
	a := NewArchiver(Config{BatchSize: 10, FlushInterval: time.Second, QueueSize: 4}, nil, nil)

	a.Observe("order:created", json.RawMessage(`{"orderId":"O1"}`))

	select {
	case r := <-a.input:
		if r.Event != "order:created" {
			t.Errorf("Event = %s", r.Event)
		}
		if string(r.Payload) != `{"orderId":"O1"}` {
			t.Errorf("Payload = %s", r.Payload)
		}
		if r.ReceivedAt.IsZero() {
			t.Error("ReceivedAt not set")
		}
	default:
		t.Fatal("nothing enqueued")
	}
}

func TestObserve_CopiesPayload(t *testing.T) {
	a := NewArchiver(Config{BatchSize: 10, FlushInterval: time.Second, QueueSize: 4}, nil, nil)

	payload := []byte(`{"n":1}`)
	a.Observe("x", payload)
	payload[5] = '9'

	r := <-a.input
	if string(r.Payload) != `{"n":1}` {
		t.Errorf("stored payload mutated: %s", r.Payload)
	}
}

func TestObserve_FullQueueDropsAndCounts(t *testing.T) {
	a := NewArchiver(Config{BatchSize: 10, FlushInterval: time.Second, QueueSize: 2}, nil, nil)

	for i := 0; i < 5; i++ {
		a.Observe("notification", json.RawMessage(`{}`))
	}

	if drops := a.Stats().Drops; drops != 3 {
		t.Errorf("Drops = %d, want 3", drops)
	}
	if len(a.input) != 2 {
		t.Errorf("queued = %d, want 2", len(a.input))
	}
}

func TestStartStop_NoEvents(t *testing.T) {
	a := NewArchiver(DefaultConfig(), nil, nil)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if m := a.Stats(); m.Inserts != 0 || m.Errors != 0 {
		t.Errorf("metrics = %+v, want zero activity", m)
	}
}
