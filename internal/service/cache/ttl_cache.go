package cache

import (
	"sync"
	"time"
)

type entry struct {
	v   any
	exp time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

// TTLOption configures TTLCache.
type TTLOption func(*TTLCache)

// WithClock replaces time.Now, for tests that step time by hand.
func WithClock(now func() time.Time) TTLOption {
	return func(c *TTLCache) { c.now = now }
}

// TTLCache is an in-process map with per-entry expiry. Expired entries are
// invisible to readers and removed lazily or by Sweep.
type TTLCache struct {
	mu  sync.RWMutex
	m   map[string]entry
	now func() time.Time
}

func NewTTLCache(opts ...TTLOption) *TTLCache {
	c := &TTLCache{m: make(map[string]entry), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		c.mu.Lock()
		// Re-check: a writer may have refreshed the key meanwhile.
		if cur, ok := c.m[key]; ok && cur.expired(c.now()) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

// Set stores v under key. ttl <= 0 never expires.
func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	c.mu.Lock()
	c.m[key] = entry{v: v, exp: c.expiry(ttl)}
	c.mu.Unlock()
}

// Update runs fn on the live value under key, if any, and stores its result
// when fn asks to. It reports whether a value was stored.
func (c *TTLCache) Update(key string, ttl time.Duration, fn func(cur any, ok bool) (any, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if ok && e.expired(c.now()) {
		ok = false
	}
	var cur any
	if ok {
		cur = e.v
	}
	v, store := fn(cur, ok)
	if !store {
		return false
	}
	c.m[key] = entry{v: v, exp: c.expiry(ttl)}
	return true
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones not yet swept included.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Sweep drops expired entries and returns how many went.
func (c *TTLCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.m {
		if e.expired(now) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

func (c *TTLCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// GetBytes reads a []byte value. A non-byte value under key reads as a miss.
func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}

var _ BytesCache = (*TTLCache)(nil)
