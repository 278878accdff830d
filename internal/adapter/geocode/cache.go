package geocode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"skycast/internal/domain"
	"skycast/internal/observability"
)

// CachedResolver wraps a Geocoder with an in-memory LRU cache whose entries
// expire after a TTL. Place data changes rarely, so the TTL is generous
// compared to the weather response cache.
type CachedResolver struct {
	inner   domain.Geocoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedResolver creates a cache decorator around a geocoder.
func NewCachedResolver(inner domain.Geocoder, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		cache:   newLRUCache(maxEntries, ttl),
		metrics: metrics,
	}
}

func (c *CachedResolver) Search(ctx context.Context, query string) ([]domain.Place, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil, nil
	}

	key := "search:" + normalized
	if places, ok := c.cache.get(key); ok {
		c.metrics.CacheLookups.WithLabelValues("geocode", "hit").Inc()
		return places, nil
	}
	c.metrics.CacheLookups.WithLabelValues("geocode", "miss").Inc()

	places, err := c.inner.Search(ctx, query)
	if err != nil {
		// Errors, including region-hint misses, are never cached; the
		// candidate set behind them can change.
		return nil, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if len(places) > 0 {
		c.cache.put(key, places)
	}
	return places, nil
}

func (c *CachedResolver) Reverse(ctx context.Context, coords domain.Coordinates) domain.Place {
	key := fmt.Sprintf("reverse:%.4f,%.4f", coords.Latitude, coords.Longitude)
	if places, ok := c.cache.get(key); ok && len(places) == 1 {
		c.metrics.CacheLookups.WithLabelValues("geocode", "hit").Inc()
		return places[0]
	}
	c.metrics.CacheLookups.WithLabelValues("geocode", "miss").Inc()

	place := c.inner.Reverse(ctx, coords)
	// The degraded placeholder is never cached; the provider may recover.
	if place.Name != "" && place.Name != "Unknown location" {
		c.cache.put(key, []domain.Place{place})
	}
	return place
}

// lruCache is a thread-safe LRU cache of place lookups with per-entry expiry.
type lruCache struct {
	maxEntries int
	ttl        time.Duration
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     []domain.Place
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int, ttl time.Duration) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if clock.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []domain.Place) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := clock.Now().Add(c.ttl)

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
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
