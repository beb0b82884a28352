// Package cache provides a small in-process TTL cache. It is passed
// explicitly into the services that need it; callers that must read the
// source of truth (feature flags gating security checks, API key hashes)
// bypass it with an explicit flag rather than relying on invalidation.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Client is a mutex-guarded TTL map with a background sweeper.
type Client struct {
	mu      sync.Mutex
	entries map[string]entry
	stop    chan struct{}
	once    sync.Once
}

// New constructs a cache client and starts its sweeper.
func New(sweepInterval time.Duration) *Client {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	c := &Client{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

// Get returns the cached value if present and not expired.
func (c *Client) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value with the given TTL.
func (c *Client) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Invalidate removes a key.
func (c *Client) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Close stops the sweeper.
func (c *Client) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Client) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
