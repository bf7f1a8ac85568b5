package service

import (
	"sync"
	"time"
)

type statusEntry struct {
	active    bool
	expiresAt time.Time
}

// StudentStatusCache is a bounded TTL cache of student active flags, shared
// by reference between services to avoid redundant user lookups within a
// session. Entries are invalidated on user writes.
type StudentStatusCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	items   map[string]statusEntry
	now     func() time.Time
}

// NewStudentStatusCache constructs the cache.
func NewStudentStatusCache(maxSize int, ttl time.Duration) *StudentStatusCache {
	if maxSize <= 0 {
		maxSize = 512
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StudentStatusCache{
		ttl:     ttl,
		maxSize: maxSize,
		items:   make(map[string]statusEntry),
		now:     time.Now,
	}
}

// Get returns the cached active flag and whether it was present and fresh.
func (c *StudentStatusCache) Get(studentID string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[studentID]
	if !ok {
		return false, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.items, studentID)
		return false, false
	}
	return entry.active, true
}

// Set stores the active flag, evicting the entry closest to expiry when full.
func (c *StudentStatusCache) Set(studentID string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[studentID]; !exists && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[studentID] = statusEntry{active: active, expiresAt: c.now().Add(c.ttl)}
}

// Invalidate drops a single entry.
func (c *StudentStatusCache) Invalidate(studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, studentID)
}

func (c *StudentStatusCache) evictOldest() {
	var oldestKey string
	var oldestExpiry time.Time
	for key, entry := range c.items {
		if oldestKey == "" || entry.expiresAt.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
