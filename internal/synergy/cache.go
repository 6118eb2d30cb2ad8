package synergy

import (
	"sync"
	"time"
)

// hintCache keeps commander hints for a fixed TTL. Hints change slowly and the
// same commander is requested repeatedly while a user iterates on a deck.
type hintCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	hints   []string
	expires time.Time
}

func newHintCache(ttl time.Duration) *hintCache {
	return &hintCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *hintCache) get(key string) ([]string, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	return append([]string(nil), e.hints...), true
}

func (c *hintCache) put(key string, hints []string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		hints:   append([]string(nil), hints...),
		expires: c.now().Add(c.ttl),
	}
}
