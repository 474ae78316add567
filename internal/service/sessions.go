package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ad-assistant/backend/internal/quota"
	"ad-assistant/backend/internal/realtime"
	"ad-assistant/backend/internal/timeline"
	"ad-assistant/backend/pkg/logger"
)

// ErrSessionsClosed is returned by Acquire after Close
var ErrSessionsClosed = errors.New("session manager closed")

type session struct {
	userID string
	tl     *timeline.Synchronizer
	sub    *realtime.Subscription
	refs   int
	idle   *time.Timer
	ready  chan struct{}
	err    error
}

// SessionManager owns one live timeline per user. A session is opened on
// first acquire: the quota gate is re-synced, the realtime channel is
// subscribed and the newest page is loaded. It is torn down once the last
// holder releases it and the idle period passes.
type SessionManager struct {
	store    timeline.Store
	broker   *realtime.Broker
	gate     *quota.Gate
	pageSize int
	idleTTL  time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewSessionManager creates a manager. broker may be nil to run without
// realtime pushes.
func NewSessionManager(store timeline.Store, broker *realtime.Broker, gate *quota.Gate, pageSize int, idleTTL time.Duration, log *logger.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		broker:   broker,
		gate:     gate,
		pageSize: pageSize,
		idleTTL:  idleTTL,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// Acquire returns the user's synchronizer and a release function that must
// be called once the caller is done with it.
func (m *SessionManager) Acquire(ctx context.Context, userID string) (*timeline.Synchronizer, func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrSessionsClosed
	}
	if s, ok := m.sessions[userID]; ok {
		s.refs++
		if s.idle != nil {
			s.idle.Stop()
			s.idle = nil
		}
		m.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			m.release(s)
			return nil, nil, ctx.Err()
		}
		if s.err != nil {
			m.release(s)
			return nil, nil, s.err
		}
		return s.tl, m.releaser(s), nil
	}

	s := &session{
		userID: userID,
		tl:     timeline.NewSynchronizer(userID, m.pageSize, m.store, m.log),
		refs:   1,
		ready:  make(chan struct{}),
	}
	m.sessions[userID] = s
	m.mu.Unlock()

	s.err = m.open(ctx, s)
	close(s.ready)
	if s.err != nil {
		m.mu.Lock()
		if m.sessions[userID] == s {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		m.teardown(s)
		return nil, nil, s.err
	}
	return s.tl, m.releaser(s), nil
}

func (m *SessionManager) open(ctx context.Context, s *session) error {
	if m.gate != nil {
		m.gate.Sync(ctx, s.userID)
	}
	if m.broker != nil {
		sub, err := m.broker.Subscribe(ctx, s.userID, s.tl.ApplyPush)
		if err != nil {
			return fmt.Errorf("open realtime channel: %w", err)
		}
		s.sub = sub
	}
	if _, err := s.tl.LoadInitial(ctx); err != nil {
		return err
	}
	m.log.Debug("Session opened", "user_id", s.userID)
	return nil
}

func (m *SessionManager) releaser(s *session) func() {
	var once sync.Once
	return func() {
		once.Do(func() { m.release(s) })
	}
}

func (m *SessionManager) release(s *session) {
	m.mu.Lock()
	s.refs--
	if s.refs > 0 || m.sessions[s.userID] != s {
		m.mu.Unlock()
		return
	}
	if m.idleTTL > 0 {
		s.idle = time.AfterFunc(m.idleTTL, func() { m.expire(s) })
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s.userID)
	m.mu.Unlock()
	m.teardown(s)
}

func (m *SessionManager) expire(s *session) {
	m.mu.Lock()
	if m.sessions[s.userID] != s || s.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s.userID)
	m.mu.Unlock()
	m.teardown(s)
}

func (m *SessionManager) teardown(s *session) {
	if s.sub != nil {
		m.broker.Release(s.sub)
	}
	if m.gate != nil {
		m.gate.Forget(s.userID)
	}
	m.log.Debug("Session closed", "user_id", s.userID)
}

// Lookup returns the live synchronizer for userID without opening one
func (m *SessionManager) Lookup(userID string) (*timeline.Synchronizer, bool) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-s.ready:
		return s.tl, s.err == nil
	default:
		return nil, false
	}
}

// MarkImplemented mirrors a persisted implemented flag into the user's live
// view, if one is open
func (m *SessionManager) MarkImplemented(userID, messageID string) {
	if tl, ok := m.Lookup(userID); ok {
		tl.MarkImplemented(messageID)
	}
}

// Active returns the number of open sessions
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down every session and refuses new ones
func (m *SessionManager) Close() {
	m.mu.Lock()
	m.closed = true
	open := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.idle != nil {
			s.idle.Stop()
		}
		open = append(open, s)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range open {
		<-s.ready
		m.teardown(s)
	}
}
