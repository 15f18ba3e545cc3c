package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps windows in a process-local map.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

// Hit implements Backend. A lapsed window is replaced, not merged.
func (m *MemoryBackend) Hit(_ context.Context, key string, policy Policy, now time.Time) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || now.After(e.ResetAt) {
		e = Entry{Count: 1, ResetAt: now.Add(policy.Window)}
	} else {
		e.Count++
	}
	if e.Count > policy.MaxAttempts {
		e.Blocked = true
	}
	m.entries[key] = e
	return e, nil
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string, now time.Time) (Entry, bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok || now.After(e.ResetAt) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Sweep implements Backend. Expired keys are collected under the lock and
// removed in a second short critical section, re-checking each entry so a
// window restarted in between survives.
func (m *MemoryBackend) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	var expired []string
	for k, e := range m.entries {
		if now.After(e.ResetAt) {
			expired = append(expired, k)
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, k := range expired {
		m.mu.Lock()
		if e, ok := m.entries[k]; ok && now.After(e.ResetAt) {
			delete(m.entries, k)
			removed++
		}
		m.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored windows, lapsed or not.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
