package cache

import (
	"sync"
	"time"
)

// Key scopes cached values by entry type and identifier, so a whole
// type can be invalidated without touching unrelated entries.
type Key struct {
	Type string
	ID   string
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a TTL key-value store shared by fetch adapters and the
// relevance config provider. An instance is passed to collaborators
// explicitly; its lifecycle is tied to process start/stop.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry
	done    chan struct{}
	once    sync.Once
}

func New() *Cache {
	c := &Cache{
		entries: make(map[Key]entry),
		done:    make(chan struct{}),
	}

	go c.janitor()

	return c
}

func (c *Cache) Set(key Key, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *Cache) Get(key Key) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	return e.value, true
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateType removes every entry of the given type. Used when a
// curator edit changes the relevance configuration for any region.
func (c *Cache) InvalidateType(entryType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if key.Type == entryType {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop terminates the background janitor. Safe to call more than once.
func (c *Cache) Stop() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
