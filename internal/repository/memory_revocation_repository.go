package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationRepository keeps the ledger in process. It is only shared
// by callers of the same process and suits single instance deployments and
// tests. Expired entries are hidden on read and removed by Purge.
type MemoryRevocationRepository struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	clock
}

// NewMemoryRevocationRepository creates an empty in-memory ledger.
func NewMemoryRevocationRepository(opts ...Option) *MemoryRevocationRepository {
	return &MemoryRevocationRepository{
		entries: make(map[string]time.Time),
		clock:   newClock(opts),
	}
}

func (m *MemoryRevocationRepository) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expiresAt, ok := m.entries[TokenKey(token)]
	if !ok {
		return false, nil
	}
	return m.now().Before(expiresAt), nil
}

func (m *MemoryRevocationRepository) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	now := m.now()
	if !expiresAt.After(now) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := TokenKey(token)
	if existing, ok := m.entries[key]; ok && now.Before(existing) {
		return nil
	}
	m.entries[key] = expiresAt
	return nil
}

func (m *MemoryRevocationRepository) Purge(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for key, expiresAt := range m.entries {
		if !now.Before(expiresAt) {
			delete(m.entries, key)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryRevocationRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryRevocationRepository) Ping(context.Context) error {
	return nil
}
