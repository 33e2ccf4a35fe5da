package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager keeps the open operator sessions.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a registry that hands opts to every session it creates.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		opts:     opts,
		logger:   opts.Logger.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session and returns its id.
func (m *Manager) Create() (string, *Session) {
	id := uuid.NewString()
	opts := m.opts
	opts.Logger = m.opts.Logger.With("session", id)
	s := New(opts)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session opened", "session", id)
	return id, s
}

// Get looks up an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session and stops its batch timers.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.logger.Info("session closed", "session", id)
	return nil
}

// CloseAll ends every session; used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// Agents returns the roster.
func (m *Manager) Agents() []string {
	return append([]string(nil), m.opts.Agents...)
}
