package quotecache

import (
	"container/list"
	"sync"
)

// boundedFIFO is a thread-safe map capped at maxSize entries. When full, the
// oldest inserted entry is evicted; reads do not change the order.
type boundedFIFO[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]*list.Element
	order   *list.List
	maxSize int
	zeroVal V
}

type fifoEntry[K comparable, V any] struct {
	key   K
	value V
}

func newBoundedFIFO[K comparable, V any](maxSize int) *boundedFIFO[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &boundedFIFO[K, V]{
		items:   make(map[K]*list.Element, min(maxSize, 1024)),
		order:   list.New(),
		maxSize: maxSize,
	}
}

func (c *boundedFIFO[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.items[key]
	if !ok {
		return c.zeroVal, false
	}
	return elem.Value.(*fifoEntry[K, V]).value, true
}

// Set replaces the value in place if key exists, keeping its age.
func (c *boundedFIFO[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*fifoEntry[K, V]).value = value
		return
	}

	for len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	c.items[key] = c.order.PushFront(&fifoEntry[K, V]{key: key, value: value})
}

// DeleteIf removes key only while it still holds a value for which match
// returns true, so a concurrent refresh is not thrown away.
func (c *boundedFIFO[K, V]) DeleteIf(key K, match func(V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok || !match(elem.Value.(*fifoEntry[K, V]).value) {
		return
	}
	c.order.Remove(elem)
	delete(c.items, key)
}

// Must be called with mu held
func (c *boundedFIFO[K, V]) evictOldest() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	delete(c.items, back.Value.(*fifoEntry[K, V]).key)
}

func (c *boundedFIFO[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
