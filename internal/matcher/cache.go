package matcher

import (
	"slices"
	"strconv"
	"sync"
)

// CacheStats describes the cache contents.
type CacheStats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Cache holds successful resolutions for the life of the process.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Match
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Match)}
}

// CacheKey builds the lookup key from normalized title, year and the strongest known id.
func CacheKey(d Descriptor) string {
	year := ""
	if d.Year > 0 {
		year = strconv.Itoa(d.Year)
	}
	return NormalizeTitle(d.Title) + "|" + year + "|" + d.knownID()
}

// Get returns a copy of the cached match for key.
func (c *Cache) Get(key string) (*Match, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return &m, true
}

// Put stores a match. Nil matches are not cached.
func (c *Cache) Put(key string, m *Match) {
	if m == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *m
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]Match)
	return n
}

// Stats returns the cache size and its sorted keys.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return CacheStats{Size: len(keys), Keys: keys}
}
