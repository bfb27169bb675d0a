package cache

import (
	"sync"
	"time"
)

// entry wraps a value with its expiry for TTL tracking.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is an in-memory TTL map safe for concurrent use. Expired entries
// are evicted lazily on read; there is no background sweeper. Each flow of
// the proxy gets its own typed store (one per correlation family).
type Store[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry[V]
	now     func() time.Time
}

// New creates a store whose entries live for ttl measured from Put.
func New[V any](ttl time.Duration) *Store[V] {
	return &Store[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Put stores value under key. The entry expires ttl from now; putting an
// existing key resets its clock.
func (s *Store[V]) Put(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, expiresAt: s.now().Add(s.ttl)}
}

// Get returns the live value for key. An expired entry is removed and
// reported as absent.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

// Take atomically reads and deletes the value for key. At most one caller
// ever observes a given entry; this is what makes return codes single-use.
func (s *Store[V]) Take(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.getLocked(key)
	if ok {
		delete(s.entries, key)
	}
	return v, ok
}

// Update applies fn to the live value for key in place, preserving the
// entry's original expiry. Returns false if the key is absent or expired.
func (s *Store[V]) Update(key string, fn func(V) V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return false
	}
	e.value = fn(e.value)
	s.entries[key] = e
	return true
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports the number of entries, including any not yet lazily evicted.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[V]) getLocked(key string) (V, bool) {
	var zero V
	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return zero, false
	}
	return e.value, true
}
