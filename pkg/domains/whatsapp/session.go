package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/events"
	"github.com/wadispatch/pkg/metrics"
	"github.com/wadispatch/pkg/utils"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateQRPending     State = "qr_pending"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
	StateDisconnected  State = "disconnected"
	StateAuthFailed    State = "auth_failed"
)

// Timings bounds the session lifecycle.
type Timings struct {
	PairingTTL        time.Duration
	SettleDelay       time.Duration
	ReconnectBase     time.Duration
	ReconnectMaxDelay time.Duration
	MaxReconnects     int
	ForceNewAttempts  int
}

func TimingsFromConfig(c config.WhatsApp) Timings {
	return Timings{
		PairingTTL:        c.PairingTTL,
		SettleDelay:       c.SettleDelay,
		ReconnectBase:     c.ReconnectBase,
		ReconnectMaxDelay: c.ReconnectMaxDelay,
		MaxReconnects:     c.MaxReconnects,
		ForceNewAttempts:  c.ForceNewAttempts,
	}
}

// reconnectDelay is min(max, base*2^(attempt-1)).
func reconnectDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Status is a point-in-time view of a session.
type Status struct {
	TenantID          uint   `json:"tenant_id"`
	State             State  `json:"state"`
	Ready             bool   `json:"ready"`
	LoggedIn          bool   `json:"logged_in"`
	PairingCode       string `json:"pairing_code,omitempty"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	NeedsRelink       bool   `json:"needs_relink,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

type sessionHooks struct {
	onChange  func(Status)
	onInbound func(uint, InboundMessage)
	// renew replaces an expired pairing; nil restarts in place.
	renew func(*Session)
}

// Session owns the protocol connection of one tenant. Every client is bound
// to a generation; events from a client of an older generation are dropped.
type Session struct {
	tenantID  uint
	factory   ClientFactory
	timings   Timings
	publisher events.Publisher
	hooks     sessionHooks
	log       *logrus.Entry

	mu                sync.Mutex
	client            Client
	state             State
	ready             bool
	pairingCode       string
	pairingTimer      *time.Timer
	reconnectTimer    *time.Timer
	reconnectAttempts int
	generation        uint64
	loggingOut        bool
	halted            bool
	closed            bool
	lastError         string
	changed           chan struct{}
}

func newSession(tenantID uint, factory ClientFactory, timings Timings, publisher events.Publisher, hooks sessionHooks) *Session {
	return &Session{
		tenantID:  tenantID,
		factory:   factory,
		timings:   timings,
		publisher: publisher,
		hooks:     hooks,
		log:       logrus.WithFields(logrus.Fields{"component": "session", "tenant_id": tenantID}),
		state:     StateUninitialized,
		changed:   make(chan struct{}),
	}
}

func (s *Session) TenantID() uint { return s.tenantID }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Connect starts a bring-up unless one is running, the session is ready, or a
// reconnect is already scheduled. A halted session stays down until resumed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.halted {
		s.mu.Unlock()
		return ErrRelinkRequired
	}
	if s.busyLocked() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.start(ctx, true)
}

// Send fails with ErrNotReady unless the session is ready. In-flight sends are
// not interrupted by logout.
func (s *Session) Send(ctx context.Context, to, body string) error {
	s.mu.Lock()
	client, ready := s.client, s.ready
	s.mu.Unlock()
	if !ready || client == nil {
		return ErrNotReady
	}
	if err := client.SendText(ctx, to, body); err != nil {
		if IsRateLimited(err) && !errors.Is(err, ErrRateLimited) {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return err
	}
	return nil
}

// resume lifts a halt so the next Connect starts a bring-up.
func (s *Session) resume() {
	s.mu.Lock()
	s.halted = false
	s.mu.Unlock()
}

// ForceNewSession tears the connection down, waits the settle delay and
// reconnects, giving up after ForceNewAttempts tries.
func (s *Session) ForceNewSession(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.generation++
	s.stopTimersLocked()
	old := s.client
	s.client = nil
	s.ready = false
	s.halted = false
	s.pairingCode = ""
	s.reconnectAttempts = 0
	s.setStateLocked(StateInitializing)
	st := s.statusLocked()
	s.mu.Unlock()

	s.notify(st)
	if old != nil {
		old.Disconnect()
	}

	var err error
	for attempt := 1; attempt <= s.timings.ForceNewAttempts; attempt++ {
		if err = utils.SleepContext(ctx, s.timings.SettleDelay); err != nil {
			return err
		}
		if err = s.start(ctx, false); err == nil {
			return nil
		}
		s.log.WithError(err).WithField("attempt", attempt).Warn("new session attempt failed")
	}
	return err
}

// Logout logs out remotely when possible, purges the stored credentials and
// starts over with a fresh pairing.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.loggingOut = true
	s.generation++
	s.stopTimersLocked()
	old := s.client
	s.client = nil
	s.ready = false
	s.pairingCode = ""
	s.setStateLocked(StateDisconnected)
	st := s.statusLocked()
	s.mu.Unlock()
	s.notify(st)

	if old != nil {
		if err := old.Logout(ctx); err != nil {
			s.log.WithError(err).Warn("remote logout failed")
		}
		old.Disconnect()
	}
	err := s.factory.Purge(s.tenantID)

	s.mu.Lock()
	s.loggingOut = false
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.ForceNewSession(ctx)
}

// Close disconnects without logging out; credentials stay on disk.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.generation++
	s.stopTimersLocked()
	old := s.client
	s.client = nil
	s.ready = false
	s.mu.Unlock()
	if old != nil {
		old.Disconnect()
	}
}

func (s *Session) start(ctx context.Context, retry bool) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.halted = false
	s.stopTimersLocked()
	old := s.client
	s.client = nil
	s.ready = false
	s.pairingCode = ""
	s.setStateLocked(StateInitializing)
	st := s.statusLocked()
	s.mu.Unlock()

	s.notify(st)
	if old != nil {
		old.Disconnect()
	}

	client, err := s.factory.NewClient(ctx, s.tenantID, func(evt ClientEvent) { s.handle(gen, evt) })
	if err != nil {
		return s.startFailed(gen, err, retry)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		client.Disconnect()
		return nil
	}
	s.client = client
	s.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		return s.startFailed(gen, err, retry)
	}
	s.log.Info("session connecting")
	return nil
}

func (s *Session) startFailed(gen uint64, err error, retry bool) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return err
	}
	old := s.client
	s.client = nil
	s.lastError = err.Error()
	if retry {
		s.scheduleReconnectLocked(gen)
	} else {
		s.halted = true
		s.setStateLocked(StateDisconnected)
	}
	st := s.statusLocked()
	s.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	s.notify(st)
	return err
}

func (s *Session) handle(gen uint64, evt ClientEvent) {
	s.mu.Lock()
	if gen != s.generation || s.closed {
		s.mu.Unlock()
		return
	}
	if evt.Kind == EventInbound {
		s.mu.Unlock()
		if evt.Message != nil && s.hooks.onInbound != nil {
			go s.hooks.onInbound(s.tenantID, *evt.Message)
		}
		return
	}

	var (
		teardown Client
		purge    bool
		code     string
	)
	switch evt.Kind {
	case EventPairingCode:
		code = evt.Code
		s.pairingCode = evt.Code
		s.setStateLocked(StateQRPending)
		if s.pairingTimer == nil {
			s.pairingTimer = time.AfterFunc(s.timings.PairingTTL, func() { s.pairingExpired(gen) })
		}
	case EventAuthenticated:
		s.pairingCode = ""
		s.setStateLocked(StateAuthenticated)
	case EventReady:
		s.stopPairingLocked()
		s.pairingCode = ""
		s.reconnectAttempts = 0
		s.lastError = ""
		s.ready = true
		s.setStateLocked(StateReady)
	case EventDisconnected:
		s.ready = false
		s.pairingCode = ""
		s.stopPairingLocked()
		teardown, s.client = s.client, nil
		switch {
		case evt.Reason == ReasonSuperseded:
			s.lastError = ReasonSuperseded
			s.halted = true
			s.setStateLocked(StateDisconnected)
		case s.loggingOut:
			s.setStateLocked(StateDisconnected)
		default:
			s.lastError = evt.Reason
			s.scheduleReconnectLocked(gen)
		}
	case EventAuthFailure:
		s.generation++
		s.ready = false
		s.pairingCode = ""
		s.stopTimersLocked()
		teardown, s.client = s.client, nil
		s.lastError = evt.Reason
		s.halted = true
		purge = true
		s.setStateLocked(StateAuthFailed)
	default:
		s.mu.Unlock()
		return
	}
	st := s.statusLocked()
	s.mu.Unlock()

	if teardown != nil || purge {
		// Runs off the client's event goroutine.
		go func() {
			if teardown != nil {
				teardown.Disconnect()
			}
			if purge {
				if err := s.factory.Purge(s.tenantID); err != nil {
					s.log.WithError(err).Error("failed to purge credentials after auth failure")
				}
			}
		}()
	}
	if code != "" {
		s.publisher.Publish(context.Background(), events.New(events.SessionPairingCode, s.tenantID, map[string]string{"code": code}))
	}
	s.notify(st)
}

func (s *Session) pairingExpired(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.closed || s.ready || s.pairingTimer == nil {
		s.mu.Unlock()
		return
	}
	s.pairingTimer = nil
	s.pairingCode = ""
	s.mu.Unlock()

	s.log.Info("pairing code expired, starting a new session")
	s.publisher.Publish(context.Background(), events.New(events.SessionPairingExpired, s.tenantID, nil))
	if s.hooks.renew != nil {
		s.hooks.renew(s)
		return
	}
	if err := s.ForceNewSession(context.Background()); err != nil {
		s.log.WithError(err).Warn("failed to start a new session after pairing expiry")
	}
}

func (s *Session) reconnect(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.closed || s.reconnectTimer == nil {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	attempt := s.reconnectAttempts
	s.mu.Unlock()

	s.log.WithField("attempt", attempt).Info("reconnecting")
	if err := s.start(context.Background(), true); err != nil {
		s.log.WithError(err).Warn("reconnect attempt failed")
	}
}

func (s *Session) scheduleReconnectLocked(gen uint64) {
	s.ready = false
	s.setStateLocked(StateDisconnected)
	if s.reconnectAttempts >= s.timings.MaxReconnects {
		s.lastError = "reconnect attempts exhausted, relink required"
		s.halted = true
		s.log.Warn(s.lastError)
		return
	}
	s.reconnectAttempts++
	delay := reconnectDelay(s.timings.ReconnectBase, s.timings.ReconnectMaxDelay, s.reconnectAttempts)
	s.reconnectTimer = time.AfterFunc(delay, func() { s.reconnect(gen) })
}

func (s *Session) busyLocked() bool {
	if s.loggingOut {
		return true
	}
	switch s.state {
	case StateInitializing, StateQRPending, StateAuthenticated, StateReady:
		return true
	}
	return s.reconnectTimer != nil
}

// settledLocked reports whether a bring-up reached a state a caller can act
// on.
func (s *Session) settledLocked() bool {
	if s.ready || s.pairingCode != "" || s.state == StateAuthFailed {
		return true
	}
	return s.state == StateDisconnected && s.reconnectTimer == nil
}

// awaitSettled waits until the session settles or grace elapses.
func (s *Session) awaitSettled(ctx context.Context, grace time.Duration) Status {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for {
		s.mu.Lock()
		st := s.statusLocked()
		settled := s.settledLocked()
		changed := s.changed
		s.mu.Unlock()
		if settled {
			return st
		}
		select {
		case <-changed:
		case <-timer.C:
			return s.Status()
		case <-ctx.Done():
			return s.Status()
		}
	}
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) stopPairingLocked() {
	if s.pairingTimer != nil {
		s.pairingTimer.Stop()
		s.pairingTimer = nil
	}
}

func (s *Session) stopTimersLocked() {
	s.stopPairingLocked()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) statusLocked() Status {
	return Status{
		TenantID:          s.tenantID,
		State:             s.state,
		Ready:             s.ready,
		LoggedIn:          s.client != nil && s.client.IsLoggedIn(),
		PairingCode:       s.pairingCode,
		ReconnectAttempts: s.reconnectAttempts,
		NeedsRelink:       s.halted,
		LastError:         s.lastError,
	}
}

func (s *Session) notify(st Status) {
	metrics.SessionTransitions.WithLabelValues(string(st.State)).Inc()
	s.publisher.Publish(context.Background(), events.New(events.SessionState, s.tenantID, st))
	if s.hooks.onChange != nil {
		s.hooks.onChange(st)
	}
}
