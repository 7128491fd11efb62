// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single channel handle; a new connect supersedes any live one
//   - Gates connection attempts on credential presence
//   - Retries failed connects with growing delay up to a capped attempt
//     count, then marks the channel Terminated
//   - Registers event handlers and activates role subscriptions (after a
//     short settle delay) on every successful connection
package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/novamart/realtime/internal/credentials"
	"github.com/novamart/realtime/internal/router"
	"github.com/novamart/realtime/internal/store"
	"github.com/novamart/realtime/internal/subscription"
	"github.com/novamart/realtime/internal/transport"
)

// Dialer opens a channel connection. Injectable for tests; defaults to
// transport.Dial.
type Dialer func(ctx context.Context, url string, opts transport.Options, logger *slog.Logger) (transport.Handle, error)

// Manager owns the channel lifecycle.
type Manager interface {
	// Evaluate reacts to an external authentication state change.
	// Idempotent: repeated calls with the same state have no extra effect.
	Evaluate(ctx context.Context, authenticated bool)

	// Connect attempts to establish the channel. Returns (nil, nil) when no
	// credentials are present; that is the expected unauthenticated state.
	Connect(ctx context.Context) (transport.Handle, error)

	// Reconnect tears down any existing handle and connects from scratch.
	// The only way out of StateTerminated.
	Reconnect(ctx context.Context) error

	// Disconnect closes and discards the current handle. No-op without one.
	Disconnect()

	// Status returns the read-only connection health projection.
	Status() Status

	// OnConnected registers a callback fired after each successful connect.
	OnConnected(fn func())

	// Stop shuts the manager down for good.
	Stop(ctx context.Context) error
}

// manager implements the Manager interface.
type manager struct {
	cfg        Config
	creds      credentials.Store
	router     *router.Router
	dispatcher store.Dispatcher
	dial       Dialer
	logger     *slog.Logger

	// Serializes Connect/Disconnect/Reconnect/Evaluate. An in-flight
	// connect is never raced; later calls wait for it.
	opMu sync.Mutex

	// Guards the fields below.
	mu       sync.Mutex
	state    State
	handle   transport.Handle
	attempts int
	gen      uint64 // handle generation, for ignoring stale goroutines
	hooks    []func()

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// Option customizes the Manager.
type Option func(*manager)

// WithDialer replaces the transport dialer.
func WithDialer(d Dialer) Option {
	return func(m *manager) { m.dial = d }
}

// NewManager creates a Connection Manager.
func NewManager(
	cfg Config,
	creds credentials.Store,
	rtr *router.Router,
	dispatcher store.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &manager{
		cfg:        cfg,
		creds:      creds,
		router:     rtr,
		dispatcher: dispatcher,
		dial:       transport.Dial,
		logger:     logger,
		state:      StateDisconnected,
		rootCtx:    ctx,
		rootCancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate reacts to an authentication state change.
func (m *manager) Evaluate(ctx context.Context, authenticated bool) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	hasHandle := m.handle != nil
	state := m.state
	m.mu.Unlock()

	if authenticated {
		if hasHandle {
			return
		}
		if state == StateTerminated {
			// Terminated is only cleared by an explicit Reconnect.
			m.logger.Debug("terminated, not reconnecting on auth change")
			return
		}
		if _, err := m.connectLocked(ctx); err != nil {
			m.logger.Error("connect failed", "error", err)
		}
		return
	}

	if hasHandle {
		m.disconnectLocked()
	}
}

// Connect attempts to establish the channel.
func (m *manager) Connect(ctx context.Context) (transport.Handle, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	terminated := m.state == StateTerminated
	m.mu.Unlock()
	if terminated {
		return nil, ErrTerminated
	}

	return m.connectLocked(ctx)
}

// Reconnect always tears down first, then connects from scratch.
func (m *manager) Reconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.disconnectLocked()

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()

	_, err := m.connectLocked(ctx)
	return err
}

// Disconnect closes and discards the current handle.
func (m *manager) Disconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.disconnectLocked()
}

// Status returns the current connection health projection.
func (m *manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{ReconnectAttempts: m.attempts}
	if m.handle != nil {
		st.ConnectionID = m.handle.ID()
		st.IsConnected = m.state == StateConnected && m.handle.Connected()
	}
	return st
}

// OnConnected registers a post-connect callback.
func (m *manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Stop shuts down the manager.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	m.rootCancel()

	m.opMu.Lock()
	m.disconnectLocked()
	m.opMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
	}

	return nil
}

// connectLocked runs the connect/retry loop. Caller holds opMu.
func (m *manager) connectLocked(ctx context.Context) (transport.Handle, error) {
	// Never leak a second concurrent handle.
	m.disconnectLocked()

	for {
		// The session snapshot is re-read on every attempt: role and tenant
		// may have changed while we were retrying.
		sess, err := credentials.LoadSession(ctx, m.creds)
		if err != nil {
			m.setState(StateDisconnected)
			return nil, err
		}
		if !sess.Valid() {
			// Expected "not yet authenticated" state, not an error.
			m.logger.Debug("no session token, connect declined")
			m.setState(StateDisconnected)
			return nil, nil
		}

		m.setState(StateConnecting)

		opts := transport.DefaultOptions()
		opts.Token = sess.Token
		opts.UserID = sess.UserID
		opts.Role = string(sess.Role)
		opts.HandshakeTimeout = m.cfg.HandshakeTimeout

		h, err := m.dial(ctx, m.cfg.URL, opts, m.logger)
		if err == nil {
			m.installHandle(h, sess)
			return h, nil
		}

		m.mu.Lock()
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Warn("connect attempt failed",
			"attempt", attempts,
			"max", m.cfg.MaxReconnectAttempts,
			"error", err,
		)

		if attempts >= m.cfg.MaxReconnectAttempts {
			// Fatal for this channel instance. Credentials stay put: this is
			// a local failure, not a backend revocation.
			m.setState(StateTerminated)
			m.logger.Error("max reconnect attempts reached, channel terminated")
			return nil, ErrMaxRetriesExceeded
		}

		select {
		case <-ctx.Done():
			m.setState(StateDisconnected)
			return nil, ctx.Err()
		case <-m.rootCtx.Done():
			m.setState(StateDisconnected)
			return nil, m.rootCtx.Err()
		case <-time.After(m.retryDelay(attempts)):
		}
	}
}

// retryDelay doubles the base delay per attempt, capped at the max.
func (m *manager) retryDelay(attempt int) time.Duration {
	delay := m.cfg.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.ReconnectMaxDelay {
			return m.cfg.ReconnectMaxDelay
		}
	}
	return delay
}

// installHandle adopts a freshly dialed handle: registers handlers, fires
// hooks, and schedules monitoring plus settle-delayed activation.
func (m *manager) installHandle(h transport.Handle, sess credentials.Session) {
	m.mu.Lock()
	m.handle = h
	m.state = StateConnected
	m.attempts = 0
	m.gen++
	gen := m.gen
	hooks := m.hooks
	m.mu.Unlock()

	// Handler registration happens before any inbound event can race it.
	m.router.Attach(h, m.dispatcher)

	for _, fn := range hooks {
		fn()
	}

	m.logger.Info("channel connected",
		"channel_id", h.ID(),
		"role", sess.Role,
	)

	m.wg.Add(2)
	go m.monitor(h, gen)
	go m.activateAfterSettle(h, sess, gen)
}

// activateAfterSettle waits out the settle delay, then activates the role's
// topic plan. The delay avoids racing the backend's own connection
// bookkeeping.
func (m *manager) activateAfterSettle(h transport.Handle, sess credentials.Session, gen uint64) {
	defer m.wg.Done()

	select {
	case <-m.rootCtx.Done():
		return
	case <-time.After(m.cfg.SettleDelay):
	}

	if m.staleGen(gen) {
		return
	}

	plan := subscription.Plan(sess.Role, sess.TenantID)
	if len(plan) == 0 {
		m.logger.Warn("no topics for role", "role", sess.Role)
		return
	}

	if err := subscription.Activate(h, plan, m.logger); err != nil {
		m.logger.Warn("subscription activation incomplete", "error", err)
	}
}

// monitor watches the handle for transport errors and drives automatic
// reconnection.
func (m *manager) monitor(h transport.Handle, gen uint64) {
	defer m.wg.Done()

	select {
	case <-m.rootCtx.Done():
		return
	case <-h.Done():
		// Closed locally; whoever closed it owns the next step.
		return
	case err, ok := <-h.Errors():
		if !ok || m.staleGen(gen) {
			return
		}

		m.logger.Warn("transport error, will reconnect", "error", err)

		m.opMu.Lock()
		defer m.opMu.Unlock()

		// The handle may have been replaced while we waited for opMu.
		if m.staleGen(gen) {
			return
		}

		// A disconnect is not a logout: credentials stay, we just redial.
		m.disconnectLocked()

		if _, err := m.connectLocked(m.rootCtx); err != nil {
			m.logger.Error("automatic reconnection failed", "error", err)
		}
	}
}

// staleGen reports whether gen belongs to a superseded handle.
func (m *manager) staleGen(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

// disconnectLocked closes and discards the current handle. Caller holds
// opMu. Safe without a handle.
func (m *manager) disconnectLocked() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.attempts = 0
	if h != nil {
		m.gen++
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if h == nil {
		return
	}

	h.Disconnect()
	m.router.Detach(h.ID())
	m.logger.Info("channel disconnected", "channel_id", h.ID())
}

// setState updates the connection state under the lock.
func (m *manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
