package tilecache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memEntry struct {
	value   []byte
	expires time.Time
}

// MemoryBackend is a per-process map. Entries expire when read; there is no sweeper, so
// expired keys that are never read again stay until Clear.
type MemoryBackend struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]memEntry
}

func NewMemoryBackend(clock clockwork.Clock) *MemoryBackend {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryBackend{clock: clock, entries: map[string]memEntry{}}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, time.Duration, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, false, nil
	}
	now := m.clock.Now()
	if !now.Before(e.expires) {
		m.mu.Lock()
		// a concurrent Set may have refreshed it
		if cur, ok := m.entries[key]; ok && !m.clock.Now().Before(cur.expires) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, 0, false, nil
	}
	return e.value, e.expires.Sub(now), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memEntry{value: value, expires: m.clock.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	n := len(m.entries)
	m.entries = map[string]memEntry{}
	m.mu.Unlock()
	return n, nil
}

// Len counts stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryBackend) Close() error { return nil }
