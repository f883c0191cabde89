package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// QueryKey identifies a free-text query case- and whitespace-insensitively.
func QueryKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

type queryEntry[V any] struct {
	value    V
	storedAt time.Time
}

// QueryCache is a bounded in-memory TTL cache. Expired entries are dropped
// when read; when full, expired entries go first and then the oldest one.
type QueryCache[V any] struct {
	mu       sync.Mutex
	entries  map[string]queryEntry[V]
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

func NewQueryCache[V any](ttl time.Duration, capacity int, now func() time.Time) *QueryCache[V] {
	if now == nil {
		now = time.Now
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &QueryCache[V]{
		entries:  make(map[string]queryEntry[V]),
		ttl:      ttl,
		capacity: capacity,
		now:      now,
	}
}

func (c *QueryCache[V]) Get(key string) (V, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, 0, false
	}

	age := c.now().Sub(entry.storedAt)
	if age >= c.ttl {
		delete(c.entries, key)
		return zero, 0, false
	}

	return entry.value, age, true
}

func (c *QueryCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evict(now)
	}
	c.entries[key] = queryEntry[V]{value: value, storedAt: now}
}

// PeekAge reports the age of key without applying the TTL.
func (c *QueryCache[V]) PeekAge(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.storedAt), true
}

func (c *QueryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache[V]) evict(now time.Time) {
	var (
		oldestKey string
		oldestAt  time.Time
	)

	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || entry.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.storedAt
		}
	}

	if len(c.entries) >= c.capacity && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
