// internal/session/manager.go
package session

import (
	"sync"

	"github.com/qckfx/rewind/internal/config"
)

// Manager is the id-keyed session registry. Sessions are created lazily
// on first use and dropped when released; there is no explicit destroy
// in the session lifecycle.
type Manager struct {
	cfg      *config.Config
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for id, creating it on first use.
// The returned session's generated id is used when id is empty.
func (m *Manager) GetOrCreate(id, workingDir string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if sess, ok := m.sessions[id]; ok {
			return sess
		}
	}

	sess := New(id, workingDir, m.cfg)
	m.sessions[sess.ID()] = sess
	return sess
}

// Get returns an existing session, or nil
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Release drops a session from the registry and closes its resources
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[id]; ok {
		sess.Close()
		delete(m.sessions, id)
	}
}

// Close releases every session
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		sess.Close()
		delete(m.sessions, id)
	}
}
