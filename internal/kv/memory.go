package kv

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is an in-process Store backed by a sharded concurrent map.
// Expiry is lazy: expired entries are dropped when next observed. All
// check-then-act paths go through Compute, which the map executes
// atomically per key, so a lazy eviction can never clobber a concurrent
// fresh write.
type Memory struct {
	entries *xsync.MapOf[string, memoryEntry]

	// now is swappable in tests.
	now func() time.Time
}

type memoryEntry struct {
	value    string
	expireAt time.Time // zero means no expiry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: xsync.NewMapOf[string, memoryEntry](),
		now:     time.Now,
	}
}

func (m *Memory) live(e memoryEntry) bool {
	return e.expireAt.IsZero() || m.now().Before(e.expireAt)
}

func (m *Memory) entry(value string, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	return e
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.entries.Store(key, m.entry(value, ttl))
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	var stored bool
	m.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		if loaded && m.live(old) {
			return old, false
		}
		stored = true
		return m.entry(value, ttl), false
	})
	return stored, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	e, ok := m.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
		// Deleting an absent key is a no-op for the map.
		return old, !loaded || !m.live(old)
	})
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}
