package kv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rental-gate-api/internal/domain"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store safe for concurrent use from independent
// HTTP handlers. A janitor sweeps expired entries so abandoned challenges
// don't accumulate.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates a MemoryStore and starts its janitor.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{entries: make(map[string]memoryEntry)}
	go s.janitor()
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, domain.ErrNotFound)
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(time.Now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, fmt.Errorf("key %q expired: %w", key, domain.ErrNotFound)
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// janitor removes expired entries every minute.
func (s *MemoryStore) janitor() {
	for {
		time.Sleep(time.Minute)
		now := time.Now()
		s.mu.Lock()
		for k, e := range s.entries {
			if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
				delete(s.entries, k)
			}
		}
		s.mu.Unlock()
	}
}
