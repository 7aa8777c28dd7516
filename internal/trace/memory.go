package trace

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the most recent records in process memory. Entries fall
// out by TTL or once the store exceeds its capacity, oldest access first.
type MemoryStore struct {
	mu            sync.Mutex
	maxEntries    int
	ttl           time.Duration
	entries       map[string]*list.Element
	order         *list.List
	responseIndex map[string]string
	now           func() time.Time
}

type memoryEntry struct {
	requestID string
	expiresAt time.Time
	record    *Record
}

// NewMemoryStore creates a memory trace store. maxEntries below one keeps a
// single record; a non-positive ttl disables expiry.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryStore{
		maxEntries:    maxEntries,
		ttl:           ttl,
		entries:       make(map[string]*list.Element),
		order:         list.New(),
		responseIndex: make(map[string]string),
		now:           time.Now,
	}
}

func (s *MemoryStore) GetByRequestID(ctx context.Context, requestID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired()

	elem, ok := s.entries[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	entry := elem.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.evict(requestID)
		return nil, ErrNotFound
	}
	s.order.MoveToBack(elem)
	return entry.record, nil
}

func (s *MemoryStore) GetByResponseID(ctx context.Context, responseID string) (*Record, error) {
	s.mu.Lock()
	requestID, ok := s.responseIndex[responseID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByRequestID(ctx, requestID)
}

func (s *MemoryStore) Set(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired()

	if elem, ok := s.entries[record.RequestID]; ok {
		old := elem.Value.(*memoryEntry)
		if old.record.ResponseID != "" && old.record.ResponseID != record.ResponseID {
			delete(s.responseIndex, old.record.ResponseID)
		}
		s.order.Remove(elem)
		delete(s.entries, record.RequestID)
	}

	entry := &memoryEntry{requestID: record.RequestID, record: record}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[record.RequestID] = s.order.PushBack(entry)
	if record.ResponseID != "" {
		s.responseIndex[record.ResponseID] = record.RequestID
	}

	for len(s.entries) > s.maxEntries {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		s.evict(oldest.Value.(*memoryEntry).requestID)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// evict removes one entry and its response index. Caller holds the lock.
func (s *MemoryStore) evict(requestID string) {
	elem, ok := s.entries[requestID]
	if !ok {
		return
	}
	entry := elem.Value.(*memoryEntry)
	s.order.Remove(elem)
	delete(s.entries, requestID)
	if entry.record.ResponseID != "" {
		delete(s.responseIndex, entry.record.ResponseID)
	}
}

// purgeExpired drops entries past their expiry. Caller holds the lock.
func (s *MemoryStore) purgeExpired() {
	if s.ttl <= 0 {
		return
	}
	now := s.now()
	var expired []string
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*memoryEntry)
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			expired = append(expired, entry.requestID)
		}
	}
	for _, requestID := range expired {
		s.evict(requestID)
	}
}
