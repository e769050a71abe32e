package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec       WindowRecord
	expiresAt time.Time
}

// MemoryStore is a process-local CounterStore guarded by a mutex. State is not
// shared across replicas, so it suits tests and single-instance deployments;
// distributed tiers should use the Redis or Postgres stores.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

var _ CounterStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) CheckAndIncrement(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, write := decide(m.live(key, now), now, limit, window)
	if write != nil {
		m.entries[key] = memoryEntry{
			rec:       *write,
			expiresAt: now.Add(recordTTL(*write, now, window)),
		}
	}
	return res, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*WindowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(key, m.now()), nil
}

func (m *MemoryStore) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// live returns a copy of the record for key, honoring TTL expiry lazily.
// Callers must hold the mutex.
func (m *MemoryStore) live(key string, now time.Time) *WindowRecord {
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}
	// A record at exactly expiresAt is still live: the TTL may equal the
	// window, and the fixed-window algorithm treats the boundary instant as
	// inside the window, so eviction must never run ahead of it.
	if now.After(entry.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	rec := entry.rec
	return &rec
}
