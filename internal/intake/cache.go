package intake

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultSessionCapacity = 10000
	defaultSessionTTL      = 24 * time.Hour
	defaultDedupCapacity   = 100000
	defaultDedupTTL        = 24 * time.Hour
)

// boundedCache is a mutex-guarded LRU map whose entries also expire after
// ttl without being touched. A non-positive ttl disables expiry.
type boundedCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	order    *list.List
	items    map[K]*list.Element
}

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	touchedAt time.Time
}

func newBoundedCache[K comparable, V any](capacity int, ttl time.Duration, now func() time.Time) *boundedCache[K, V] {
	if capacity <= 0 {
		capacity = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &boundedCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		order:    list.New(),
		items:    map[K]*list.Element{},
	}
}

func (c *boundedCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	now := c.now()
	if c.expired(entry, now) {
		c.removeElement(elem)
		return zero, false
	}
	entry.touchedAt = now
	c.order.MoveToFront(elem)
	return entry.value, true
}

func (c *boundedCache[K, V]) set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, c.now())
}

// addIfAbsent stores value and returns true only when key was not already
// live in the cache.
func (c *boundedCache[K, V]) addIfAbsent(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if elem, ok := c.items[key]; ok {
		if !c.expired(elem.Value.(*cacheEntry[K, V]), now) {
			return false
		}
		c.removeElement(elem)
	}
	c.setLocked(key, value, now)
	return true
}

func (c *boundedCache[K, V]) delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

func (c *boundedCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *boundedCache[K, V]) setLocked(key K, value V, now time.Time) {
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry[K, V])
		entry.value = value
		entry.touchedAt = now
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&cacheEntry[K, V]{key: key, value: value, touchedAt: now})
	c.pruneLocked(now)
}

func (c *boundedCache[K, V]) pruneLocked(now time.Time) {
	for c.order.Len() > 0 {
		oldest := c.order.Back()
		if c.order.Len() <= c.capacity && !c.expired(oldest.Value.(*cacheEntry[K, V]), now) {
			return
		}
		c.removeElement(oldest)
	}
}

func (c *boundedCache[K, V]) expired(entry *cacheEntry[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(entry.touchedAt) >= c.ttl
}

func (c *boundedCache[K, V]) removeElement(elem *list.Element) {
	entry := c.order.Remove(elem).(*cacheEntry[K, V])
	delete(c.items, entry.key)
}
