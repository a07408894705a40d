package openweather

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
)

// CachedSource wraps a WeatherSource with an in-memory LRU cache whose
// entries expire after ttl. It is shared across scheduled runs.
type CachedSource struct {
	inner   domain.WeatherSource
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator. A ttl of zero disables expiry.
func NewCachedSource(inner domain.WeatherSource, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

func (c *CachedSource) FetchWeather(ctx context.Context, geo domain.GeoPoint) (domain.WeatherPayload, error) {
	key := geo.Key().String()
	now := c.clock.Now()

	if e, ok := c.cache.get(key); ok {
		if c.ttl <= 0 || now.Before(e.expires) {
			c.metrics.WeatherCache.WithLabelValues("hit").Inc()
			return e.value, nil
		}
		c.cache.delete(key)
		c.metrics.WeatherCache.WithLabelValues("expired").Inc()
	} else {
		c.metrics.WeatherCache.WithLabelValues("miss").Inc()
	}

	result, err := c.inner.FetchWeather(ctx, geo)
	if err != nil {
		return result, err
	}
	// Only successes are cached so failed locations are retried next run.
	c.cache.put(key, result, now.Add(c.ttl))
	return result, nil
}

// Len returns the number of cached locations.
func (c *CachedSource) Len() int {
	return c.cache.len()
}

// lruCache is a simple thread-safe LRU cache of weather payloads.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key     string
	value   domain.WeatherPayload
	expires time.Time
	prev    *entry
	next    *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	c.moveToFront(e)
	return *e, true
}

func (c *lruCache) put(key string, value domain.WeatherPayload, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expires: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
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
