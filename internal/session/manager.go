package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Manager serializes work on a session id and commits changes atomically:
// a session is only saved when the update function succeeds.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager wraps a store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: make(map[string]*keyLock)}
}

// Get returns a copy of the session, or a new idle one if none is stored.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return New(id), nil
	}
	return s, err
}

// Update runs fn on a private copy of the session while holding the
// session's lock. Requests for other sessions are not blocked.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Session) error) error {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	s.UpdatedAt = time.Now()
	return m.store.Save(ctx, s)
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &keyLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}
