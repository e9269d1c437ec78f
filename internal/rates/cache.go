package rates

import (
	"container/list"
	"sync"
	"time"

	"moneta/internal/core"
)

// rateCache is a small LRU with TTL, keyed by (from, to, day). It only saves
// store round-trips; the store keeps the durable observations.
type rateCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type rateCacheItem struct {
	key       string
	rate      core.ExchangeRate
	expiresAt time.Time
}

func newRateCache(maxSize int, ttl time.Duration) *rateCache {
	return &rateCache{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func cacheKey(from, to string, date core.Date) string {
	return from + "/" + to + "@" + date.String()
}

func (c *rateCache) get(key string) (core.ExchangeRate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return core.ExchangeRate{}, false
	}

	item := elem.Value.(*rateCacheItem)
	if time.Now().After(item.expiresAt) {
		c.removeElement(elem)
		return core.ExchangeRate{}, false
	}

	c.lru.MoveToFront(elem)
	return item.rate, true
}

func (c *rateCache) set(key string, rate core.ExchangeRate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &rateCacheItem{key: key, rate: rate, expiresAt: time.Now().Add(c.ttl)}
	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *rateCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

func (c *rateCache) removeElement(elem *list.Element) {
	item := elem.Value.(*rateCacheItem)
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

func (c *rateCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
