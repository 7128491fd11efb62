package termination

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/novamart/realtime/internal/credentials"
	"github.com/novamart/realtime/internal/store"
)

// recorder implements every collaborator interface and records the order in
// which the protocol steps touch them.
type recorder struct {
	mu    sync.Mutex
	calls []string

	promptTitle   string
	promptMessage string
	promptErr     error
	navErr        error
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Dispatch(a store.Action) { r.record("dispatch:" + a.Type) }
func (r *recorder) Disconnect()             { r.record("disconnect") }

func (r *recorder) Prompt(ctx context.Context, title, message string) error {
	r.record("prompt")
	r.mu.Lock()
	r.promptTitle = title
	r.promptMessage = message
	r.mu.Unlock()
	return r.promptErr
}

func (r *recorder) ResetToEntry() error {
	r.record("navigate")
	return r.navErr
}

func (r *recorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.sequence() {
		if c == call {
			n++
		}
	}
	return n
}

// wipeTrackingStore wraps a credential store so the recorder sees the wipe.
type wipeTrackingStore struct {
	credentials.Store
	rec *recorder
	err error
}

func (s *wipeTrackingStore) RemoveAll(ctx context.Context, keys []string) error {
	s.rec.record("wipe")
	if s.err != nil {
		return s.err
	}
	return s.Store.RemoveAll(ctx, keys)
}

func newTestHandler(t *testing.T, rec *recorder, wipeErr error) (*Handler, credentials.Store) {
	t.Helper()
	ctx := context.Background()

	mem := credentials.NewMemoryStore()
	mem.Set(ctx, credentials.KeySessionToken, "tok-1")
	mem.Set(ctx, credentials.KeyUserID, "u-1")
	mem.Set(ctx, credentials.KeyUserRole, "customer")

	creds := &wipeTrackingStore{Store: mem, rec: rec, err: wipeErr}
	return NewHandler(creds, rec, rec, rec, rec, nil), creds
}

func TestRun_FixedOrder(t *testing.T) {
	rec := &recorder{}
	h, creds := newTestHandler(t, rec, nil)

	h.Run(context.Background(), Reason{Kind: KindAccountBlocked, Message: "blocked"})

	want := []string{
		"wipe",
		"dispatch:" + store.ActionSessionForciblyEnded,
		"disconnect",
		"prompt",
		"navigate",
	}
	got := rec.sequence()
	if len(got) != len(want) {
		t.Fatalf("call sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d = %s, want %s (full sequence %v)", i, got[i], want[i], got)
		}
	}

	// Credentials are gone before the user ever saw the prompt.
	if _, ok, _ := creds.Get(context.Background(), credentials.KeySessionToken); ok {
		t.Error("session token survived the wipe")
	}

	if rec.promptTitle != "Account Blocked" || rec.promptMessage != "blocked" {
		t.Errorf("prompt = %q / %q", rec.promptTitle, rec.promptMessage)
	}
	if h.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.State())
	}
}

func TestRun_DuplicateDeliveryPromptsOnce(t *testing.T) {
	rec := &recorder{}
	h, _ := newTestHandler(t, rec, nil)
	ctx := context.Background()

	h.Run(ctx, Reason{Kind: KindAccountBlocked, Message: "m"})
	h.Run(ctx, Reason{Kind: KindAccountBlocked, Message: "m"})
	h.HandleForcedLogout(EventUserForceLogout, nil)

	if n := rec.count("prompt"); n != 1 {
		t.Errorf("prompted %d times, want exactly 1", n)
	}
	if n := rec.count("wipe"); n != 1 {
		t.Errorf("wiped %d times, want exactly 1", n)
	}
}

func TestRun_StepFailureContinues(t *testing.T) {
	rec := &recorder{promptErr: errors.New("ui gone")}
	h, _ := newTestHandler(t, rec, errors.New("keystore locked"))

	h.Run(context.Background(), Reason{Kind: KindAccessRevoked, Message: "m"})

	// All five steps still ran.
	if len(rec.sequence()) != 5 {
		t.Errorf("sequence = %v, want all 5 steps", rec.sequence())
	}
	if rec.count("navigate") != 1 {
		t.Error("navigation reset should run despite earlier failures")
	}
	if h.State() != StateFailed {
		t.Errorf("state = %v, want failed", h.State())
	}

	// A failed run still latches: no second prompt.
	h.Run(context.Background(), Reason{Kind: KindAccessRevoked, Message: "m"})
	if n := rec.count("prompt"); n != 1 {
		t.Errorf("prompted %d times after failed run, want 1", n)
	}
}

func TestReset_AllowsNextRun(t *testing.T) {
	rec := &recorder{}
	h, _ := newTestHandler(t, rec, nil)
	ctx := context.Background()

	h.Run(ctx, Reason{Kind: KindAccountBlocked, Message: "m"})
	h.Reset()
	h.Run(ctx, Reason{Kind: KindAccountBlocked, Message: "m"})

	if n := rec.count("prompt"); n != 2 {
		t.Errorf("prompted %d times across two sessions, want 2", n)
	}
}

func TestDecodeReason(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload string
		want    Reason
	}{
		{
			name:    "flat message",
			event:   EventUserForceLogout,
			payload: `{"message":"banned for fraud"}`,
			want:    Reason{Kind: KindAccountBlocked, Message: "banned for fraud"},
		},
		{
			name:    "nested under data",
			event:   EventAgencyForceLogout,
			payload: `{"data":{"message":"agency suspended"}}`,
			want:    Reason{Kind: KindAccessRevoked, Message: "agency suspended"},
		},
		{
			name:    "nested wins over flat",
			event:   EventUserForceLogout,
			payload: `{"message":"outer","data":{"message":"inner"}}`,
			want:    Reason{Kind: KindAccountBlocked, Message: "inner"},
		},
		{
			name:  "empty payload gets blocked default",
			event: EventUserForceLogout,
			want:  Reason{Kind: KindAccountBlocked, Message: DefaultBlockedMessage},
		},
		{
			name:  "empty payload gets revoked default",
			event: EventAgencyForceLogout,
			want:  Reason{Kind: KindAccessRevoked, Message: DefaultRevokedMessage},
		},
		{
			name:    "malformed payload still terminates",
			event:   EventUserForceLogout,
			payload: `{not json`,
			want:    Reason{Kind: KindAccountBlocked, Message: DefaultBlockedMessage},
		},
		{
			name:  "unrecognized event",
			event: "weird:event",
			want:  Reason{Kind: KindOther, Message: DefaultRevokedMessage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeReason(tt.event, json.RawMessage(tt.payload))
			if got != tt.want {
				t.Errorf("DecodeReason = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindAccountBlocked, "Account Blocked"},
		{KindAccessRevoked, "Access Revoked"},
		{KindOther, "Session Ended"},
	}
	for _, tt := range tests {
		if got := title(tt.kind); got != tt.want {
			t.Errorf("title(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
