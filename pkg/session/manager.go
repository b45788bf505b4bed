package session

import (
	"context"
	"fmt"
	"sync"
)

// GlobalPool is the manager key used when no authenticated principal is
// available.
const GlobalPool = "global"

// Manager keys sessions per authenticated user and enforces per-user
// isolation. Unauthenticated callers share the global pool.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]map[string]*Session
	defaults Options
}

// NewManager creates a manager whose sessions start from the given options.
func NewManager(defaults Options) *Manager {
	return &Manager{
		sessions: make(map[string]map[string]*Session),
		defaults: defaults,
	}
}

// Create opens a new session for a user. An empty user means the global
// pool.
func (m *Manager) Create(ctx context.Context, user string) (*Session, error) {
	if user == "" {
		user = GlobalPool
	}

	s, err := New(ctx, m.defaults)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[user] == nil {
		m.sessions[user] = make(map[string]*Session)
	}
	m.sessions[user][s.ID()] = s
	return s, nil
}

// Get returns a user's session by id. A session belonging to another user
// is invisible.
func (m *Manager) Get(user, id string) (*Session, error) {
	if user == "" {
		user = GlobalPool
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[user][id]
	if !ok {
		return nil, fmt.Errorf("session %q not found", id)
	}
	return s, nil
}

// Delete closes and removes a user's session.
func (m *Manager) Delete(user, id string) error {
	if user == "" {
		user = GlobalPool
	}
	m.mu.Lock()
	s, ok := m.sessions[user][id]
	if ok {
		delete(m.sessions[user], id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	return s.Close()
}

// Close tears down every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for user, byID := range m.sessions {
		for id, s := range byID {
			if err := s.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			delete(byID, id)
		}
		delete(m.sessions, user)
	}
	return firstErr
}
