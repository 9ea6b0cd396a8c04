package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

type memoryEntry struct {
	payload  []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) validAt(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// MemoryStore is a process-local cache with per-entry TTL. Expired entries are
// evicted lazily on the next lookup of their key.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the clock used for TTL comparisons.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get unmarshals the entry stored under key into dest. It returns
// appErrors.ErrCacheMiss when the key is absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string, dest interface{}) error {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if !entry.validAt(s.now()) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current.storedAt.Equal(entry.storedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set stores value under key, overwriting any previous entry and resetting its timestamp.
func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl for %s must be positive", key)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	s.mu.Lock()
	s.entries[key] = memoryEntry{payload: payload, storedAt: s.now(), ttl: ttl}
	s.mu.Unlock()
	return nil
}

// DeleteMatching removes every key containing substr. An empty substr clears the store.
func (s *MemoryStore) DeleteMatching(_ context.Context, substr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if substr == "" {
		s.entries = make(map[string]memoryEntry)
		return nil
	}
	for key := range s.entries {
		if strings.Contains(key, substr) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
