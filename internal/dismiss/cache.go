// Package dismiss holds the in-memory suppression cache for context
// reminders. The cache is process-local and intentionally not durable: a
// restart clearing it means at worst one extra reminder.
package dismiss

import (
	"sync"
	"time"
)

// Cache maps event id to the time until which its context reminders stay
// suppressed.
type Cache struct {
	mu    sync.RWMutex
	until map[int64]time.Time
	ttl   time.Duration
}

// NewCache builds a cache with the given default suppression TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{until: make(map[int64]time.Time), ttl: ttl}
}

// Dismiss suppresses an event for the default TTL from now and returns the
// suppression deadline.
func (c *Cache) Dismiss(eventID int64, now time.Time) time.Time {
	deadline := now.Add(c.ttl)
	c.Set(eventID, deadline)
	return deadline
}

// Set records an explicit suppression deadline, used when warming the cache
// from persisted dismissal rows. Expired entries are pruned on the way.
func (c *Cache) Set(eventID int64, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, u := range c.until {
		if !u.After(now) {
			delete(c.until, id)
		}
	}
	c.until[eventID] = until
}

// Suppressed reports whether the event's context reminders are currently
// suppressed.
func (c *Cache) Suppressed(eventID int64, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.until[eventID]
	return ok && now.Before(u)
}

// TTL returns the default suppression duration.
func (c *Cache) TTL() time.Duration { return c.ttl }
