package whatsapp

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/events"
)

// InboundHandler receives every inbound text message of every session.
type InboundHandler interface {
	HandleInbound(ctx context.Context, tenantID uint, msg InboundMessage)
}

// Manager is the registry of tenant sessions. Bring-ups go through the
// admission queue and are collapsed per tenant.
type Manager struct {
	factory   ClientFactory
	timings   Timings
	grace     time.Duration
	repo      Repository
	publisher events.Publisher
	admission *AdmissionQueue
	cancel    context.CancelFunc
	flights   singleflight.Group
	log       *logrus.Entry

	mu       sync.RWMutex
	sessions map[uint]*Session
	pending  map[uint]*Ticket
	inbound  InboundHandler
}

func NewManager(factory ClientFactory, repo Repository, publisher events.Publisher, wc config.WhatsApp) *Manager {
	if publisher == nil {
		publisher = events.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		factory:   factory,
		timings:   TimingsFromConfig(wc),
		grace:     wc.BringUpGrace,
		repo:      repo,
		publisher: publisher,
		admission: NewAdmissionQueue(ctx, wc.AdmissionConcurrency),
		cancel:    cancel,
		log:       logrus.WithField("component", "session_manager"),
		sessions:  make(map[uint]*Session),
		pending:   make(map[uint]*Ticket),
	}
}

func (m *Manager) SetInboundHandler(h InboundHandler) {
	m.mu.Lock()
	m.inbound = h
	m.mu.Unlock()
}

func (m *Manager) Get(tenantID uint) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[tenantID]
	return s, ok
}

func (m *Manager) session(tenantID uint) *Session {
	if s, ok := m.Get(tenantID); ok {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tenantID]; ok {
		return s
	}
	s := newSession(tenantID, m.factory, m.timings, m.publisher, sessionHooks{
		onChange:  m.persist,
		onInbound: m.dispatchInbound,
		renew:     m.renew,
	})
	m.sessions[tenantID] = s
	return s
}

// Remove closes the tenant's session and drops it from the registry.
func (m *Manager) Remove(tenantID uint) {
	m.mu.Lock()
	s, ok := m.sessions[tenantID]
	delete(m.sessions, tenantID)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (m *Manager) IsReady(tenantID uint) bool {
	s, ok := m.Get(tenantID)
	return ok && s.IsReady()
}

// Connect brings the tenant's session up. Concurrent callers share one
// attempt, which lasts until the session settles or the grace period ends.
func (m *Manager) Connect(ctx context.Context, tenantID uint) (Status, error) {
	s := m.session(tenantID)
	v, err, _ := m.flights.Do(strconv.FormatUint(uint64(tenantID), 10), func() (interface{}, error) {
		if err := s.Connect(ctx); err != nil {
			return s.Status(), err
		}
		return s.awaitSettled(ctx, m.grace), nil
	})
	st, _ := v.(Status)
	return st, err
}

// Admit queues a bring-up for the tenant unless its session is ready or one
// is already queued.
func (m *Manager) Admit(tenantID uint) *Ticket {
	if m.IsReady(tenantID) {
		return resolvedTicket(tenantID, nil)
	}
	m.mu.Lock()
	if t, ok := m.pending[tenantID]; ok {
		m.mu.Unlock()
		return t
	}
	t := m.admission.Admit(tenantID, func(ctx context.Context) error {
		_, err := m.Connect(ctx, tenantID)
		return err
	})
	m.pending[tenantID] = t
	m.mu.Unlock()

	go func() {
		<-t.Done()
		m.mu.Lock()
		if m.pending[tenantID] == t {
			delete(m.pending, tenantID)
		}
		m.mu.Unlock()
	}()
	return t
}

// EnsureSession requests a bring-up in the background. Halted sessions are
// left alone.
func (m *Manager) EnsureSession(tenantID uint) {
	m.Admit(tenantID)
}

// renew queues a fresh pairing for a session whose code expired.
func (m *Manager) renew(s *Session) {
	m.admission.Admit(s.TenantID(), s.ForceNewSession)
}

func (m *Manager) SendMessage(ctx context.Context, tenantID uint, to, body string) error {
	s, ok := m.Get(tenantID)
	if !ok {
		return ErrNotReady
	}
	return s.Send(ctx, to, body)
}

// GetPairingCode returns the current code, bringing the session up first
// when it is idle, failed or exhausted. It is the relink path for halted
// sessions.
func (m *Manager) GetPairingCode(ctx context.Context, tenantID uint) (Status, error) {
	s := m.session(tenantID)
	if st := s.Status(); st.Ready || st.PairingCode != "" {
		return st, nil
	}
	s.resume()
	if err := m.Admit(tenantID).Wait(ctx); err != nil {
		return s.Status(), err
	}
	return s.Status(), nil
}

func (m *Manager) ForceNewSession(ctx context.Context, tenantID uint) (Status, error) {
	s := m.session(tenantID)
	if err := m.admission.Admit(tenantID, s.ForceNewSession).Wait(ctx); err != nil {
		return s.Status(), err
	}
	return s.awaitSettled(ctx, m.grace), nil
}

// Logout takes an admission slot like any other bring-up since it ends with a
// fresh pairing.
func (m *Manager) Logout(ctx context.Context, tenantID uint) error {
	s := m.session(tenantID)
	return m.admission.Admit(tenantID, s.Logout).Wait(ctx)
}

// Status prefers the live session and falls back to the persisted state.
func (m *Manager) Status(ctx context.Context, tenantID uint) (Status, error) {
	if s, ok := m.Get(tenantID); ok {
		return s.Status(), nil
	}
	if m.repo == nil {
		return Status{TenantID: tenantID, State: StateUninitialized}, nil
	}
	row, err := m.repo.FindByTenant(ctx, tenantID)
	if errors.Is(err, ErrSessionNotFound) {
		return Status{TenantID: tenantID, State: StateUninitialized}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{
		TenantID:          tenantID,
		State:             State(row.State),
		LoggedIn:          row.IsLoggedIn,
		ReconnectAttempts: row.ReconnectAttempts,
		LastError:         row.LastError,
	}, nil
}

func (m *Manager) QueueStatus() AdmissionStatus {
	return m.admission.Status()
}

// Restore queues a bring-up for every tenant with stored credentials.
func (m *Manager) Restore(ctx context.Context) error {
	tenants, err := m.factory.Tenants()
	if err != nil {
		return err
	}
	for _, id := range tenants {
		m.Admit(id)
	}
	m.log.WithField("tenants", len(tenants)).Info("restoring sessions")
	return nil
}

// Shutdown disconnects every session without logging out.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[uint]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.log.WithField("sessions", len(sessions)).Info("sessions closed")
}

func (m *Manager) persist(st Status) {
	if m.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.SaveState(ctx, st); err != nil {
		m.log.WithError(err).WithField("tenant_id", st.TenantID).Warn("failed to persist session state")
	}
}

func (m *Manager) dispatchInbound(tenantID uint, msg InboundMessage) {
	m.mu.RLock()
	h := m.inbound
	m.mu.RUnlock()
	if h == nil {
		m.publisher.Publish(context.Background(), events.New(events.InboundMessage, tenantID, msg))
		return
	}
	h.HandleInbound(context.Background(), tenantID, msg)
}
