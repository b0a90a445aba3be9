// Package blobstore provides the in-memory TTL cache holding uploaded
// image bytes and generated visualization artifacts. Entries live only
// for the process lifetime.
package blobstore

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultSweepInterval is the minimum spacing between amortized
// garbage-collection sweeps triggered by Put
const DefaultSweepInterval = 60 * time.Second

type entry struct {
	data        []byte
	contentType string
	expiresAt   time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is a process-wide key to (bytes, content type, expiry) cache.
// All operations serialize on a single lock; none of them perform I/O
// and none of them return errors. Absence is a normal return value.
type Store struct {
	mu            sync.Mutex
	entries       map[string]entry
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		entries:       make(map[string]entry),
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
}

// Put inserts or overwrites an entry. A ttl greater than zero sets the
// expiry that far in the future; any other ttl stores the entry without
// expiry. At most once per sweep interval a Put also removes every
// expired entry as a side effect.
func (s *Store) Put(key string, data []byte, contentType string, ttl time.Duration) {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := entry{data: buf, contentType: contentType}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e
	s.maybeSweep(now)
}

// Get returns the payload and content type for key. A miss is reported
// for keys that never existed and for expired entries alike; an expired
// entry found on read is deleted as part of the read.
func (s *Store) Get(key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, "", false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, "", false
	}
	buf := make([]byte, len(e.data))
	copy(buf, e.data)
	return buf, e.contentType, true
}

// Exists reports whether key holds a live entry, with the same expiry
// semantics as Get
func (s *Store) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Delete removes key if present. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// DeletePrefix removes every entry whose key starts with prefix and
// returns the number removed
func (s *Store) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			count++
		}
	}
	return count
}

// Sweep removes every expired entry and returns the number removed
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// Len returns the number of entries currently held, including entries
// that have expired but not yet been collected
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns the live keys matching prefix in sorted order. An empty
// prefix matches everything.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.entries))
	for key, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// maybeSweep runs a full expiry sweep if one has not run within the
// sweep interval. Caller must hold the lock.
func (s *Store) maybeSweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepInterval {
		return
	}
	s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	count := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			count++
		}
	}
	s.lastSweep = now
	return count
}
