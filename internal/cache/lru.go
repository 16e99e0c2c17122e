package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LRU is an in-process response cache bounded by entry count, with a TTL per
// entry.
type LRU struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	recency *list.List // front is most recently used

	max int
	ttl time.Duration
	now func() time.Time

	hits, misses atomic.Int64
}

type lruItem struct {
	key     string
	body    []byte
	expires time.Time
}

// NewLRU returns an LRU holding at most maxEntries bodies, each for ttl.
// Non-positive values fall back to 1024 entries and five minutes.
func NewLRU(maxEntries int, ttl time.Duration) *LRU {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRU{
		items:   make(map[string]*list.Element),
		recency: list.New(),
		max:     maxEntries,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a cached body. An expired entry is dropped and reported as a
// miss.
func (c *LRU) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok && c.now().After(el.Value.(*lruItem).expires) {
		c.remove(el)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.recency.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*lruItem).body, true
}

// Set stores body under key, evicting from the cold end when full.
func (c *LRU) Set(_ context.Context, key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*lruItem)
		it.body, it.expires = body, expires
		c.recency.MoveToFront(el)
		return
	}
	for c.recency.Len() >= c.max {
		c.remove(c.recency.Back())
	}
	c.items[key] = c.recency.PushFront(&lruItem{key: key, body: body, expires: expires})
}

// InvalidatePrefix drops every entry whose key starts with prefix.
func (c *LRU) InvalidatePrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.remove(el)
		}
	}
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	n := c.recency.Len()
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	return Stats{
		Driver:     "memory",
		Entries:    n,
		MaxEntries: c.max,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate(hits, misses),
	}
}

func (c *LRU) remove(el *list.Element) {
	c.recency.Remove(el)
	delete(c.items, el.Value.(*lruItem).key)
}
