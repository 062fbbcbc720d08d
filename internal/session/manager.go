package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager is the cookie-keyed registry of live session states. Idle
// sessions are pruned on access; an expired or unknown ID gets a fresh
// state, which is also how an explicit session restart works.
//
// Last-seen bookkeeping lives here, guarded by m.mu alone — never by a
// session's own lock. A session holding its lock across a slow
// generation call must not stall lookups for other sessions.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*State
	lastSeen    map[string]time.Time
	idleTimeout time.Duration
	logger      *slog.Logger
	nowFunc     func() time.Time
}

// NewManager creates a session registry. idleTimeout <= 0 defaults to
// 30 minutes.
func NewManager(idleTimeout time.Duration, logger *slog.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*State),
		lastSeen:    make(map[string]time.Time),
		idleTimeout: idleTimeout,
		logger:      logger,
		nowFunc:     time.Now,
	}
}

// Start allocates a new session and returns its ID for the cookie.
func (m *Manager) Start() (string, *State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()

	id := uuid.NewString()
	st := newState()
	m.sessions[id] = st
	m.lastSeen[id] = m.nowFunc()
	m.logger.Debug("session started", "session_id", id)
	return id, st
}

// Get returns the state for id, marking it as seen. ok is false for
// unknown or expired IDs; callers should Start a new session then.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()

	st, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	m.lastSeen[id] = m.nowFunc()
	return st, true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	return len(m.sessions)
}

// pruneLocked drops sessions idle past the timeout. Caller holds m.mu.
func (m *Manager) pruneLocked() {
	cutoff := m.nowFunc().Add(-m.idleTimeout)
	for id, seen := range m.lastSeen {
		if seen.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.lastSeen, id)
			m.logger.Debug("session expired", "session_id", id)
		}
	}
}
