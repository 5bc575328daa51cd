// Package sessions tracks the lifecycle of multiple concurrently-playing
// *player.Player instances by key with a create/remove/list interface,
// one level up the stack from a single playback session.
package sessions

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avplayer/avcore/player"
)

// ErrExists is returned by Create when key is already registered.
var ErrExists = errors.New("sessions: key already exists")

// Session represents one active playback session.
type Session struct {
	Key       string
	StartedAt time.Time
	Player    *player.Player
}

// Manager manages the lifecycle of active playback sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a new session manager. If log is nil, slog.Default()
// is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "session-manager"),
		sessions: make(map[string]*Session),
	}
}

// Create builds a Player from cfg via player.NewBuilder and registers it
// under key. Returns ErrExists if key is already registered; the
// conflicting Build is not attempted in that case.
func (m *Manager) Create(key string, cfg player.Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "key", key)
		return nil, ErrExists
	}

	p, err := player.NewBuilder(cfg).Build()
	if err != nil {
		return nil, err
	}

	s := &Session{
		Key:       key,
		StartedAt: time.Now(),
		Player:    p,
	}
	m.sessions[key] = s
	m.log.Info("session created", "key", key)
	return s, nil
}

// Get returns the session registered under key, or nil if none exists.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Remove shuts down and removes the session registered under key. A
// missing key is a no-op.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		s.Player.Shutdown()
		m.log.Info("session removed", "key", key)
	}
}

// List returns all active sessions.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
