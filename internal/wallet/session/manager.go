package session

import (
	"context"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/request"
)

type Option func(*manager)

func WithClock(c time2.Clock) Option {
	return func(m *manager) { m.clock = c }
}

func WithMetrics(s *metrics.Service) Option {
	return func(m *manager) { m.metrics = s }
}

type session struct {
	mu       sync.Mutex
	id       string
	kind     Kind
	origin   string
	openedAt time.Time
	closing  bool
	requests []string
	hooks    []Hook
}

func (s *session) snapshot() *Session {
	return &Session{
		ID:       s.id,
		Kind:     s.kind,
		Origin:   s.origin,
		OpenedAt: s.openedAt,
		Requests: append([]string(nil), s.requests...),
	}
}

type manager struct {
	broker  request.Broker
	clock   time2.Clock
	metrics *metrics.Service

	mu       sync.Mutex
	sessions map[string]*session
}

//nolint:ireturn // Returning interface is intentional for dependency injection
func NewManager(broker request.Broker, opts ...Option) Manager {
	m := &manager{
		broker:   broker,
		clock:    time2.DefaultClock,
		sessions: make(map[string]*session),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *manager) Open(ctx context.Context, kind Kind, origin string) (*Session, error) {
	if _, ok := ParseKind(string(kind)); !ok {
		return nil, errs.InvalidPayload("unknown session kind %q", kind)
	}

	s := &session{
		id:       uuid.NewString(),
		kind:     kind,
		origin:   origin,
		openedAt: m.clock.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.metrics.SessionOpened()
	util.LogFromContext(ctx).Debug().
		Str("session_id", s.id).
		Str("kind", string(kind)).
		Str("origin", origin).
		Msg("Session opened")

	return s.snapshot(), nil
}

func (m *manager) lookup(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errs.New(errs.CodeSessionClosed, "session %s is closed", id)
	}

	return s, nil
}

func (m *manager) Get(id string) (*Session, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot(), nil
}

func (m *manager) Close(ctx context.Context, id string) {
	s, err := m.lookup(id)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.closing = true
	cancelled := m.broker.CancelAllFor(ctx, id)
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.metrics.SessionClosed()
	util.LogFromContext(ctx).Debug().
		Str("session_id", id).
		Int("cancelled", cancelled).
		Msg("Session closed")
}

func (m *manager) Bind(id string, requestID string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bindLocked(requestID)
}

func (s *session) bindLocked(requestID string) error {
	if s.closing {
		return errs.New(errs.CodeSessionClosed, "session %s is closed", s.id)
	}

	s.requests = append(s.requests, requestID)

	return nil
}

func (m *manager) CreateRequest(ctx context.Context, id string, p request.CreateParams) (string, error) {
	s, err := m.lookup(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return "", errs.New(errs.CodeSessionClosed, "session %s is closed", id)
	}

	p.SessionID = id
	requestID, err := m.broker.Create(ctx, p)
	if err != nil {
		return "", err
	}

	return requestID, s.bindLocked(requestID)
}

func (m *manager) OnClose(id string, hook Hook) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return errs.New(errs.CodeSessionClosed, "session %s is closed", id)
	}
	s.hooks = append(s.hooks, hook)

	return nil
}

func (m *manager) Privileged(id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}

	if !s.kind.Privileged() {
		return errs.New(errs.CodeUnauthorized, "%s sessions cannot call privileged operations", s.kind)
	}

	return nil
}

func (m *manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

func (m *manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(ctx, id)
	}
}
