// Package cache implements a generic string-keyed cache of lazily
// created values with optional time-based expiry and pinning.
//
// It is the backing store for the remote connection pool (see package
// pool): entries are created on demand, kept for the process lifetime
// unless an expiry is configured, and can be pinned so they survive an
// expiry sweep while still in use.
package cache

import (
	"strings"
	"sync"
	"time"
)

// CreateFunc makes a new value for a cache key. The returned bool
// indicates whether the value should be cached even when err is
// non-nil (some backends can return a usable-but-degraded connection
// alongside a warning error).
type CreateFunc func(key string) (value interface{}, cacheable bool, err error)

type entry struct {
	value    interface{}
	err      error
	lastUsed time.Time
	pinCount int
}

// Cache holds a set of lazily created values keyed by string.
type Cache struct {
	mu             sync.Mutex
	cache          map[string]*entry
	expireDuration time.Duration
	expireSet      bool
	expireRunning  bool
	expireTimer    *time.Timer
}

// New creates an empty Cache with no expiry (entries live for the
// process lifetime, matching the remote connection pool's contract in
// spec §5).
func New() *Cache {
	return &Cache{
		cache: make(map[string]*entry),
	}
}

// SetExpireDuration sets how long an unused, unpinned entry survives
// before a sweep removes it. A duration of 0 disables caching entirely.
func (c *Cache) SetExpireDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireDuration = d
	c.expireSet = true
}

// SetExpireInterval starts a background sweep every d looking for
// expired entries.
func (c *Cache) SetExpireInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expireTimer != nil {
		c.expireTimer.Stop()
	}
	c.expireTimer = time.AfterFunc(d, func() {
		c.cacheExpire()
		c.mu.Lock()
		interval := d
		c.mu.Unlock()
		c.SetExpireInterval(interval)
	})
}

// noCache reports whether caching has been explicitly disabled via
// SetExpireDuration(0). By default (no call), entries are cached for
// the process lifetime.
func (c *Cache) noCache() bool {
	return c.expireSet && c.expireDuration == 0
}

// Get returns the cached value for key, creating it with create if it
// is not already cached. A non-nil error from create is cached too
// when cacheable is true, so a known-broken key doesn't retry create on
// every call.
func (c *Cache) Get(key string, create CreateFunc) (interface{}, error) {
	c.mu.Lock()
	if e, ok := c.cache[key]; ok {
		e.lastUsed = time.Now()
		c.mu.Unlock()
		return e.value, e.err
	}
	c.mu.Unlock()

	value, cacheable, err := create(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.cache[key]; ok {
		// Lost the race to populate; use what's already there.
		e.lastUsed = time.Now()
		return e.value, e.err
	}
	if cacheable && !c.noCache() {
		c.cache[key] = &entry{value: value, err: err, lastUsed: time.Now()}
	}
	return value, err
}

// GetMaybe returns the cached value for key without creating it.
func (c *Cache) GetMaybe(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Put inserts value into the cache under key unconditionally.
func (c *Cache) Put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noCache() {
		return
	}
	c.cache[key] = &entry{value: value, lastUsed: time.Now()}
}

// Pin marks key so it survives expiry sweeps until Unpin is called.
// A pin on a non-existent key is a no-op.
func (c *Cache) Pin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.cache[key]; ok {
		e.pinCount++
	}
}

// Unpin reverses one Pin call on key.
func (c *Cache) Unpin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.cache[key]; ok && e.pinCount > 0 {
		e.pinCount--
	}
}

// Delete removes key, returning true if it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache[key]; !ok {
		return false
	}
	delete(c.cache, key)
	return true
}

// DeletePrefix removes every key with the given prefix, returning the
// count removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.cache {
		if strings.HasPrefix(k, prefix) {
			delete(c.cache, k)
			n++
		}
	}
	return n
}

// Rename moves the entry at oldKey to newKey, overwriting any existing
// entry at newKey. It returns the value found at oldKey, if any.
func (c *Cache) Rename(oldKey, newKey string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[oldKey]
	if !ok {
		return nil, false
	}
	delete(c.cache, oldKey)
	c.cache[newKey] = e
	return e.value, true
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*entry)
}

// Entries returns the number of cached entries.
func (c *Cache) Entries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Keys returns a snapshot of every cached key.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.cache))
	for k := range c.cache {
		keys = append(keys, k)
	}
	return keys
}

// cacheExpire removes unpinned entries untouched for longer than
// expireDuration.
func (c *Cache) cacheExpire() {
	c.mu.Lock()
	c.expireRunning = true
	cutoff := time.Now().Add(-c.expireDuration)
	for k, e := range c.cache {
		if e.pinCount == 0 && e.lastUsed.Before(cutoff) {
			delete(c.cache, k)
		}
	}
	c.expireRunning = false
	c.mu.Unlock()
}
