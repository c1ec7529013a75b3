// Package cache provides the in-process TTL+LRU verdict cache.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
)

// DefaultCapacity and DefaultTTL match the engine defaults.
const (
	DefaultCapacity = 5000
	DefaultTTL      = time.Hour
)

type entry struct {
	key        string
	value      verdict.Result
	insertedAt time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// ResultCache is a capacity-bounded LRU cache whose entries also expire after a TTL.
// Every Get reorders the recency list, so Get and Put both take the exclusive lock.
type ResultCache struct {
	mu       sync.Mutex
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits, misses, evictions uint64

	cacheTotal     *prometheus.CounterVec // label "result": hit/miss/expired
	evictionsTotal prometheus.Counter
}

// New creates a ResultCache. Non-positive arguments fall back to the defaults.
func New(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithMetrics attaches Prometheus counters. cacheTotal must have exactly one
// free label, "result"; curry any others beforehand. Either may be nil.
func (c *ResultCache) WithMetrics(cacheTotal *prometheus.CounterVec, evictions prometheus.Counter) *ResultCache {
	c.cacheTotal = cacheTotal
	c.evictionsTotal = evictions
	return c
}

// WithClock overrides the time source.
func (c *ResultCache) WithClock(now func() time.Time) *ResultCache {
	c.now = now
	return c
}

// Get returns the cached verdict for key. An entry older than the TTL is
// removed and reported as a miss.
func (c *ResultCache) Get(key string) (verdict.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		c.inc("miss")
		return verdict.Result{}, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeElement(el)
		c.misses++
		c.inc("expired")
		return verdict.Result{}, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	c.inc("hit")
	return e.value, true
}

// Put stores value under key, refreshing its recency and timestamp.
// When the cache grows past capacity the least recently used entry is evicted.
func (c *ResultCache) Put(key string, value verdict.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, value: value, insertedAt: c.now()})

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
		c.evictions++
		if c.evictionsTotal != nil {
			c.evictionsTotal.Inc()
		}
	}
}

// Len returns the number of entries, including expired ones not yet read.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a snapshot of counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.ll.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *ResultCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

func (c *ResultCache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
