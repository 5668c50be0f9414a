package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It is safe for concurrent use;
// limits are not shared with other processes.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Take applies one attempt for key
func (s *MemoryStore) Take(_ context.Context, key string, rule Rule, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *Record
	if rec, ok := s.records[key]; ok {
		current = &rec
	}

	next, decision := take(current, rule, now)
	s.records[key] = next
	return decision, nil
}

// Get returns the record for key
func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	return rec, ok, nil
}

// Reset forgets key
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// Sweep removes expired records
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of records held
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
