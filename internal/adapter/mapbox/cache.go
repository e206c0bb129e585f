package mapbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/couchcryptid/quake-notifier/internal/observability"
)

// CachedMapProvider wraps a MapImageProvider with an in-memory LRU cache.
// Users near the same epicenter share one rendered image per cycle.
type CachedMapProvider struct {
	inner   domain.MapImageProvider
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedMapProvider creates a cache decorator around a map image provider.
func NewCachedMapProvider(inner domain.MapImageProvider, maxEntries int, metrics *observability.Metrics) *CachedMapProvider {
	return &CachedMapProvider{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedMapProvider) FetchImage(ctx context.Context, lon, lat float64) ([]byte, error) {
	key := cacheKey(lon, lat)
	if data, ok := c.cache.get(key); ok {
		c.metrics.MapCache.WithLabelValues("hit").Inc()
		return data, nil
	}
	c.metrics.MapCache.WithLabelValues("miss").Inc()

	data, err := c.inner.FetchImage(ctx, lon, lat)
	if err != nil {
		return nil, err
	}
	// Failures are not cached so the next cycle can retry.
	if len(data) > 0 {
		c.cache.put(key, data)
	}
	return data, nil
}

// cacheKey matches the precision the client renders at.
func cacheKey(lon, lat float64) string {
	return fmt.Sprintf("%.4f,%.4f", lon, lat)
}

// lruCache is a simple thread-safe LRU cache for rendered images.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
