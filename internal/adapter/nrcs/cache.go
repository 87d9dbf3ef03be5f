package nrcs

import (
	"context"
	"strings"
	"sync"
)

// StationResolver is the narrow lookup the importer depends on.
type StationResolver interface {
	ResolveStationID(ctx context.Context, name string) (string, bool)
}

// CachedResolver wraps a StationResolver with an in-memory LRU cache.
// Misses are cached too, since a failed lookup costs dozens of requests.
type CachedResolver struct {
	inner StationResolver
	cache *lruCache[resolution]
}

type resolution struct {
	id string
	ok bool
}

// NewCachedResolver creates a cache decorator around a resolver.
func NewCachedResolver(inner StationResolver, maxEntries int) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: newLRUCache[resolution](maxEntries),
	}
}

func (c *CachedResolver) ResolveStationID(ctx context.Context, name string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if r, ok := c.cache.get(key); ok {
		return r.id, r.ok
	}
	id, ok := c.inner.ResolveStationID(ctx, name)
	// A cancelled lookup says nothing about the station.
	if ctx.Err() == nil {
		c.cache.put(key, resolution{id: id, ok: ok})
	}
	return id, ok
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: max(1, maxEntries),
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
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

func (c *lruCache[V]) remove(e *entry[V]) {
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

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
