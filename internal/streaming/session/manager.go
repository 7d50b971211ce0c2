package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns the session table for one transport. Per spec.md §5,
// reads take the lock briefly to snapshot the session set, then the
// caller iterates the snapshot lock-free.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[uint64]*Session)}
}

// Create mints a fresh, never-reused SessionHandle and registers the
// session. Reconnecting from the same peer address after a TimedOut
// always gets a new handle (spec.md §4.2).
func (m *Manager) Create(peerAddr, peerPlatform string, role Role) *Session {
	handle := m.nextID.Add(1)
	s := New(handle, peerAddr, peerPlatform, role)

	m.mu.Lock()
	m.sessions[handle] = s
	m.mu.Unlock()

	return s
}

func (m *Manager) Get(handle uint64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[handle]
	return s, ok
}

// Remove drops a session from the table. It does not itself terminate
// the session; callers terminate first, then remove.
func (m *Manager) Remove(handle uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, handle)
}

// Snapshot returns the current sessions as a plain slice, safe to
// range over without holding any lock.
func (m *Manager) Snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ExpireInactive walks the session snapshot and terminates any Active
// session that has been idle past timeout, invoking onExpire for each
// one terminated. Intended to be called on a fixed tick by the
// acceptor's expired-session monitor.
func (m *Manager) ExpireInactive(timeout time.Duration, onExpire func(*Session)) {
	for _, s := range m.Snapshot() {
		if !s.IsExpired(timeout) {
			continue
		}
		if s.Timeout() && s.Terminate() {
			m.Remove(s.Handle)
			if onExpire != nil {
				onExpire(s)
			}
		}
	}
}

// Shutdown terminates every session, for use when the owning transport
// is stopping.
func (m *Manager) Shutdown(onTerminate func(*Session)) {
	for _, s := range m.Snapshot() {
		if s.Terminate() {
			m.Remove(s.Handle)
			if onTerminate != nil {
				onTerminate(s)
			}
		}
	}
}
