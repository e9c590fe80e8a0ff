package edm

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// CachedSource wraps a MonitorSource with an in-memory LRU cache for history
// fetches. Monitor histories barely change between snapshot cycles, so
// repeated fetches within the TTL are served from memory.
type CachedSource struct {
	inner domain.MonitorSource
	cache *lruCache
	ttl   time.Duration
	clock clockwork.Clock

	// Optional hit/miss observer, result is "hit" or "miss".
	observe func(result string)
}

// NewCachedSource creates a cache decorator around a monitor source.
func NewCachedSource(inner domain.MonitorSource, maxEntries int, ttl time.Duration) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: newLRUCache(maxEntries),
		ttl:   ttl,
		clock: clockwork.NewRealClock(),
	}
}

// WithClock swaps the cache's time source, for tests.
func (c *CachedSource) WithClock(clock clockwork.Clock) *CachedSource {
	c.clock = clock
	return c
}

// WithObserver registers a hit/miss callback, typically a metrics counter.
func (c *CachedSource) WithObserver(observe func(result string)) *CachedSource {
	c.observe = observe
	return c
}

// FetchActiveMonitors always goes to the API; current status must be live.
func (c *CachedSource) FetchActiveMonitors(ctx context.Context) ([]*domain.Monitor, error) {
	return c.inner.FetchActiveMonitors(ctx)
}

// FetchMonitorHistory serves from cache while the entry is fresh.
func (c *CachedSource) FetchMonitorHistory(ctx context.Context, monitorID string) ([]domain.Event, error) {
	if events, fetchedAt, ok := c.cache.get(monitorID); ok {
		if c.clock.Now().Sub(fetchedAt) < c.ttl {
			c.record("hit")
			return events, nil
		}
	}
	c.record("miss")
	events, err := c.inner.FetchMonitorHistory(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	c.cache.put(monitorID, events, c.clock.Now())
	return events, nil
}

func (c *CachedSource) record(result string) {
	if c.observe != nil {
		c.observe(result)
	}
}

// lruCache is a simple thread-safe LRU cache for history responses.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	events    []domain.Event
	fetchedAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.Event, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	c.moveToFront(e)
	return e.events, e.fetchedAt, true
}

func (c *lruCache) put(key string, events []domain.Event, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.events = events
		e.fetchedAt = fetchedAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, events: events, fetchedAt: fetchedAt}
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
