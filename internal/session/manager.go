package session

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"go.uber.org/zap"
)

// ErrInvalidSessionID is returned for IDs that are empty or contain
// characters outside [A-Za-z0-9_-].
var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Manager keeps the live sessions, keyed by ID.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	store   advantage.Store
	catalog *advantage.Catalog
	opts    Options
	idleTTL time.Duration
	logger  *zap.Logger
}

// NewManager creates a session manager. Sessions with no participants are
// dropped from memory after idleTTL; their persisted state remains.
func NewManager(store advantage.Store, catalog *advantage.Catalog, opts Options, idleTTL time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		catalog:  catalog,
		opts:     opts,
		idleTTL:  idleTTL,
		logger:   logger,
	}
}

// ValidID reports whether id can name a session.
func ValidID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// GetOrCreate returns the live session for id, creating it on first use.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	if !ValidID(id) {
		return nil, ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := New(id, m.store, m.catalog, m.opts, m.logger)
	m.sessions[id] = s
	m.logger.Info("session created", zap.String("session_id", id))
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Snapshot reads the persisted state of any session, live or not.
func (m *Manager) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	if !ValidID(id) {
		return Snapshot{}, ErrInvalidSessionID
	}
	if s, ok := m.Get(id); ok {
		return s.Snapshot(ctx)
	}
	return New(id, m.store, m.catalog, m.opts, m.logger).Snapshot(ctx)
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.logger.Info("session removed", zap.String("session_id", id))
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every live session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.logger.Info("all sessions closed", zap.Int("count", len(sessions)))
}

// CleanupIdle removes idle sessions every interval until ctx is done.
func (m *Manager) CleanupIdle(ctx context.Context, interval time.Duration) {
	if interval <= 0 || m.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := m.cleanupIdle(now); removed > 0 {
				m.logger.Debug("idle sessions removed", zap.Int("count", removed))
			}
		}
	}
}

func (m *Manager) cleanupIdle(now time.Time) int {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.Idle(now, m.idleTTL) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}
