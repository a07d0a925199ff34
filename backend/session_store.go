package backend

import "sync"

// SessionStore holds the session the client authenticates with. Writes are
// last-writer-wins; storing the same session twice is equivalent to once.
type SessionStore interface {
	Load() (*Session, bool)
	Save(s Session) error
	Clear() error
}

// MemorySessionStore keeps the session in process memory.
type MemorySessionStore struct {
	mu      sync.RWMutex
	session *Session
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (m *MemorySessionStore) Load() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, false
	}
	s := copySession(*m.session)
	return &s, true
}

func (m *MemorySessionStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copySession(s)
	m.session = &cp
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return nil
}

func copySession(s Session) Session {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
