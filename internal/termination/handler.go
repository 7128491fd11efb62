// Package termination implements the forced-logout protocol. When the
// backend revokes a session the handler tears down credentials, state, and
// the channel in a fixed order, then walks the user back to the
// unauthenticated entry point.
//
// The order is a security contract: credentials are wiped before anything
// else runs, and the user only sees the revocation prompt after nothing
// usable remains. Each step is best-effort; a failing step is logged and
// the remaining steps still run.
package termination

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/novamart/realtime/internal/credentials"
	"github.com/novamart/realtime/internal/store"
)

// Trigger events.
const (
	EventUserForceLogout   = "user:force-logout"
	EventAgencyForceLogout = "agency:force-logout"
)

// Default user-visible messages when the event carries none.
const (
	DefaultBlockedMessage = "Your account has been blocked by admin."
	DefaultRevokedMessage = "Your access has been revoked."
)

// Kind classifies the revocation.
type Kind string

const (
	KindAccountBlocked Kind = "account_blocked"
	KindAccessRevoked  Kind = "access_revoked"
	KindOther          Kind = "other"
)

// Reason carries the revocation cause through to the UI.
type Reason struct {
	Kind    Kind
	Message string
}

// State of the handler's machine.
type State int

const (
	StateIdle State = iota
	StateProcessing
	StateFailed
)

// Notifier shows the blocking acknowledgment prompt. Prompt returns once
// the user has acknowledged.
type Notifier interface {
	Prompt(ctx context.Context, title, message string) error
}

// Navigator resets UI navigation to the unauthenticated entry point,
// discarding history so authenticated screens cannot be reached by going
// back.
type Navigator interface {
	ResetToEntry() error
}

// ChannelCloser closes the live channel. Closing an already-closed channel
// must be a no-op.
type ChannelCloser interface {
	Disconnect()
}

// Handler runs the teardown protocol. Re-entrant safe: once a run has
// completed, further trigger events are ignored until Reset is called on
// the next successful connection.
type Handler struct {
	creds      credentials.Store
	dispatcher store.Dispatcher
	closer     ChannelCloser
	notifier   Notifier
	navigator  Navigator
	logger     *slog.Logger

	mu    sync.Mutex
	state State
	done  bool
}

// NewHandler creates a Handler.
func NewHandler(
	creds credentials.Store,
	dispatcher store.Dispatcher,
	closer ChannelCloser,
	notifier Notifier,
	navigator Navigator,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		creds:      creds,
		dispatcher: dispatcher,
		closer:     closer,
		notifier:   notifier,
		navigator:  navigator,
		logger:     logger,
	}
}

// State returns the current machine state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Reset clears the completed latch so a future revocation of a new session
// runs the protocol again. Called by the connection manager when a new
// connection is established.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateProcessing {
		h.done = false
		h.state = StateIdle
	}
}

// HandleForcedLogout is the router sink for trigger events.
func (h *Handler) HandleForcedLogout(event string, payload json.RawMessage) {
	h.Run(context.Background(), DecodeReason(event, payload))
}

// Run executes the teardown protocol for the given reason. Duplicate
// deliveries while a run is in flight, or after one has completed, are
// logged and skipped so the user sees exactly one prompt.
func (h *Handler) Run(ctx context.Context, reason Reason) {
	h.mu.Lock()
	if h.state == StateProcessing || h.done {
		h.mu.Unlock()
		h.logger.Debug("forced termination already handled", "kind", reason.Kind)
		return
	}
	h.state = StateProcessing
	h.mu.Unlock()

	h.logger.Warn("forced termination received",
		"kind", reason.Kind,
		"message", reason.Message,
	)

	failed := false

	// 1. Kill the credentials before anything else can use them.
	if err := h.creds.RemoveAll(ctx, credentials.SessionKeys); err != nil {
		h.logger.Error("credential wipe failed", "error", err)
		failed = true
	}

	// 2. Clear the auth slice.
	h.dispatcher.Dispatch(store.Action{Type: store.ActionSessionForciblyEnded})

	// 3. Tear down the channel.
	h.closer.Disconnect()

	// 4. Tell the user, blocking until acknowledged.
	if err := h.notifier.Prompt(ctx, title(reason.Kind), reason.Message); err != nil {
		h.logger.Error("termination prompt failed", "error", err)
		failed = true
	}

	// 5. Back to the unauthenticated entry point, history discarded.
	if err := h.navigator.ResetToEntry(); err != nil {
		h.logger.Error("navigation reset failed", "error", err)
		failed = true
	}

	h.mu.Lock()
	h.done = true
	if failed {
		h.state = StateFailed
	} else {
		h.state = StateIdle
	}
	h.mu.Unlock()

	h.logger.Info("forced termination complete", "failed", failed)
}

// title returns the prompt title for a revocation kind.
func title(kind Kind) string {
	switch kind {
	case KindAccountBlocked:
		return "Account Blocked"
	case KindAccessRevoked:
		return "Access Revoked"
	}
	return "Session Ended"
}

// reasonPayload is the trigger event payload, which arrives either flat or
// nested one level under a data field depending on the emitter.
type reasonPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Data    *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"data"`
}

// DecodeReason normalizes a trigger event payload into a Reason. The shape
// inconsistency is absorbed here; nothing downstream sees it.
func DecodeReason(event string, payload json.RawMessage) Reason {
	var p reasonPayload
	if len(payload) > 0 {
		// A malformed payload still terminates the session; defaults apply.
		_ = json.Unmarshal(payload, &p)
	}

	message := p.Message
	if p.Data != nil && p.Data.Message != "" {
		message = p.Data.Message
	}

	var kind Kind
	switch event {
	case EventUserForceLogout:
		kind = KindAccountBlocked
		if message == "" {
			message = DefaultBlockedMessage
		}
	case EventAgencyForceLogout:
		kind = KindAccessRevoked
		if message == "" {
			message = DefaultRevokedMessage
		}
	default:
		kind = KindOther
		if message == "" {
			message = DefaultRevokedMessage
		}
	}

	return Reason{Kind: kind, Message: message}
}
