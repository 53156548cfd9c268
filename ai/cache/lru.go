// Package cache provides an in-memory LRU with per-entry expiry, used to
// remember keys for a short window.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a fixed-capacity LRU whose entries expire after a TTL.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most capacity entries for ttl each.
func NewLRUCache[K comparable, V any](capacity int, ttl time.Duration) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRUCache[K, V]{
		entries:  make(map[K]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Add stores value only if key has no live entry. It reports whether the value was stored.
func (c *LRUCache[K, V]) Add(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.live(key); ok {
		return false
	}
	c.set(key, value)
	return true
}

// live returns the entry of key, dropping it when expired. Caller holds mu.
func (c *LRUCache[K, V]) live(key K) (*entry[K, V], bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry[K, V])
	if c.now().After(e.expiresAt) {
		c.remove(elem)
		return nil, false
	}
	return e, true
}

// set inserts a key that has no entry. Caller holds mu.
func (c *LRUCache[K, V]) set(key K, value V) {
	for len(c.entries) >= c.capacity {
		c.remove(c.order.Back())
	}
	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: c.now().Add(c.ttl)})
}

func (c *LRUCache[K, V]) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*entry[K, V]).key)
}
