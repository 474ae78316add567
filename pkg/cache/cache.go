// Package cache is a small in-process TTL cache used in front of redis.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	stored    uint64
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a thread-safe map with per-entry expiry and a size bound. When
// full, the entry stored longest ago is evicted.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]entry[V]
	seq     uint64
	ttl     time.Duration
	maxSize int
	onEvict func(key string, value V)
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// Options configures a cache
type Options struct {
	// TTL applies to Set. Zero keeps entries until evicted.
	TTL time.Duration
	// PurgeInterval runs a background sweep of expired entries when > 0
	PurgeInterval time.Duration
	// MaxSize bounds the number of entries when > 0
	MaxSize int
}

// New creates a cache. Call Stop to end the purge goroutine.
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		items:   make(map[string]entry[V]),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if opts.PurgeInterval > 0 {
		go c.purgeLoop(opts.PurgeInterval)
	}
	return c
}

// OnEvict registers a callback for entries dropped by expiry or size
func (c *Cache[V]) OnEvict(f func(key string, value V)) {
	c.mu.Lock()
	c.onEvict = f
	c.mu.Unlock()
}

// Set stores value under key with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL stores value under key, expiring after ttl. A ttl <= 0 never expires.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seq++
	e.stored = c.seq
	c.items[key] = e
}

// Get returns the live value stored under key
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete drops key without calling the eviction callback
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until they are purged
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stop ends the purge goroutine. The cache stays usable afterwards.
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) purgeLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.stop:
			return
		}
	}
}

// Purge drops every expired entry
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
			c.evicted(k, e.value)
		}
	}
}

func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    uint64
		found     bool
	)
	for k, e := range c.items {
		if !found || e.stored < oldest {
			oldestKey, oldest, found = k, e.stored, true
		}
	}
	if !found {
		return
	}
	e := c.items[oldestKey]
	delete(c.items, oldestKey)
	c.evicted(oldestKey, e.value)
}

func (c *Cache[V]) evicted(key string, value V) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}
