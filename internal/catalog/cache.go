package catalog

import (
	"container/list"
	"sync"

	"github.com/couchcryptid/quake-map-service/internal/domain"
)

// frameKey identifies a cached frame. The generation changes on every catalog
// replacement so frames from an old snapshot are never served.
type frameKey struct {
	generation uint64
	mode       domain.Mode
	index      int
}

type cachedFrame struct {
	key   frameKey
	frame domain.Frame
}

// frameCache is a thread-safe LRU of built frames. Only one generation is held
// at a time: storing a frame from a newer generation drops everything older.
type frameCache struct {
	mu         sync.Mutex
	capacity   int
	generation uint64
	order      *list.List // front is most recently used
	items      map[frameKey]*list.Element
}

func newFrameCache(capacity int) *frameCache {
	return &frameCache{
		capacity: max(capacity, 1),
		order:    list.New(),
		items:    make(map[frameKey]*list.Element),
	}
}

func (c *frameCache) get(key frameKey) (domain.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return domain.Frame{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cachedFrame).frame, true
}

func (c *frameCache) put(key frameKey, f domain.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key.generation < c.generation {
		return
	}
	if key.generation > c.generation {
		c.clearLocked()
		c.generation = key.generation
	}

	if el, ok := c.items[key]; ok {
		el.Value.(*cachedFrame).frame = f
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cachedFrame{key: key, frame: f})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cachedFrame).key)
	}
}

// reset drops every entry.
func (c *frameCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *frameCache) clearLocked() {
	c.order.Init()
	clear(c.items)
}

func (c *frameCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
