package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in a process-local map.
//
// It is the default backend. Individual calls are atomic, but sequences of
// calls are not transactional and the contents are not visible to other
// processes.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get implements [Store].
func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Put implements [Store].
func (m *MemoryStore) Put(_ context.Context, sess *Session) error {
	m.mu.Lock()
	m.sessions[sess.SessionID] = sess.Clone()
	m.mu.Unlock()
	return nil
}

// Update implements [Store]. fn runs under the write lock and must not call
// back into m.
func (m *MemoryStore) Update(_ context.Context, sessionID string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.sessions[sessionID] = next
	return next.Clone(), nil
}

// Delete implements [Store].
func (m *MemoryStore) Delete(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return ok, nil
}

// DeleteIf implements [Store]. pred runs under the write lock.
func (m *MemoryStore) DeleteIf(_ context.Context, sessionID string, pred func(*Session) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[sessionID]
	if !ok || !pred(cur.Clone()) {
		return false, nil
	}
	delete(m.sessions, sessionID)
	return true, nil
}

// Range implements [Store].
func (m *MemoryStore) Range(ctx context.Context, fn func(*Session) bool) error {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		snapshot = append(snapshot, sess.Clone())
	}
	m.mu.RUnlock()

	for _, sess := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(sess) {
			return nil
		}
	}
	return nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
