package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps turns in process memory with per-entry expiry. Expired
// entries are purged lazily on access.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	turn      *StoredTurn
	expiresAt time.Time
}

// NewMemoryStore creates a memory store. A non-positive ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, responseID string) (*StoredTurn, error) {
	s.mu.RLock()
	entry, ok := s.entries[responseID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, responseID)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return entry.turn, nil
}

func (s *MemoryStore) Put(ctx context.Context, responseID string, turn *StoredTurn) error {
	entry := memoryEntry{turn: turn}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[responseID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, responseID string) (bool, error) {
	s.mu.Lock()
	_, existed := s.entries[responseID]
	delete(s.entries, responseID)
	s.mu.Unlock()
	return existed, nil
}

func (s *MemoryStore) Close() error { return nil }
