// Package attendee validates meeting attendees and caches the results.
package attendee

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/capitalize-ai/meeting-assistant/pkg/metrics"
)

// evictFraction is the share of entries removed when the cache overflows.
const evictFraction = 0.2

type cacheEntry[T any] struct {
	value        T
	expiry       time.Time
	accessCount  int
	lastAccessed time.Time
}

// CacheStats are the hit and miss counters of a cache.
type CacheStats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a bounded map with per-entry expiry. When a Set pushes it past
// maxSize it drops the entries closest to expiring. It is safe for
// concurrent use.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry[T]
	maxSize int
	now     func() time.Time

	hits      int64
	misses    int64
	evictions int64
}

// NewCache creates a cache holding at most maxSize entries.
func NewCache[T any](maxSize int) *Cache[T] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache[T]{
		entries: make(map[string]*cacheEntry[T]),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the live value for key. Expired entries are removed and count
// as a miss.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		c.miss()
		return zero, false
	}
	now := c.now()
	if !now.Before(e.expiry) {
		delete(c.entries, key)
		c.miss()
		return zero, false
	}

	e.accessCount++
	e.lastAccessed = now
	c.hits++
	metrics.RecordCacheLookup(true)
	return e.value, true
}

func (c *Cache[T]) miss() {
	c.misses++
	metrics.RecordCacheLookup(false)
}

// Has reports whether key holds a live value without touching the counters.
func (c *Cache[T]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && c.now().Before(e.expiry)
}

// Set stores value under key until ttl elapses.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &cacheEntry[T]{value: value, expiry: now.Add(ttl), lastAccessed: now}
	if len(c.entries) > c.maxSize {
		c.evictLocked()
	}
}

func (c *Cache[T]) evictLocked() {
	type keyed struct {
		key    string
		expiry time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, keyed{key: k, expiry: e.expiry})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].expiry.Before(all[j].expiry) })

	n := max(1, int(float64(len(all))*evictFraction))
	for _, k := range all[:n] {
		delete(c.entries, k.key)
	}
	c.evictions += int64(n)
	metrics.AttendeeCacheEvictions.Add(float64(n))
}

// Delete removes key.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until
// they are purged.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiry) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// StartJanitor purges expired entries every interval until ctx is done.
func (c *Cache[T]) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Purge()
			}
		}
	}()
}

// Stats returns a snapshot of the counters.
func (c *Cache[T]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{
		Size:      len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
