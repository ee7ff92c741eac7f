package authority

import (
	"container/list"
	"sync"

	"github.com/pktrune/coreindex/runetypes"
)

// ContextCache is the bounded-by-byte-size LRU of per-rune Contexts.
// Eviction proceeds from the LRU end until the budget is satisfied; a
// single entry larger than the configured budget raises the effective
// budget rather than being rejected. container/list gives direct tail
// access, so the insert path can stop evicting before it would remove the
// entry it just inserted.
type ContextCache struct {
	mu       sync.Mutex
	maxBytes int
	curBytes int
	ll       *list.List
	index    map[runetypes.RuneId]*list.Element
}

type cacheEntry struct {
	id  runetypes.RuneId
	ctx *Context
}

func NewContextCache(maxBytes int) *ContextCache {
	return &ContextCache{
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[runetypes.RuneId]*list.Element),
	}
}

// Contains reports whether id has a cached entry, without touching MRU
// order.
func (c *ContextCache) Contains(id runetypes.RuneId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// GetExisting returns the cached context for id, promoting it to MRU. It
// panics if id is not present; callers must check Contains first.
func (c *ContextCache) GetExisting(id runetypes.RuneId) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		panic("authority: GetExisting called without a prior Contains hit for " + id.String())
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).ctx
}

// InsertAndGet inserts ctx under id, evicts down to budget, and returns ctx.
func (c *ContextCache) InsertAndGet(id runetypes.RuneId, ctx *Context) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		c.curBytes -= el.Value.(*cacheEntry).ctx.SizeBytes()
		c.ll.Remove(el)
		delete(c.index, id)
	}

	size := ctx.SizeBytes()
	if size > c.maxBytes {
		c.maxBytes = size
	}

	el := c.ll.PushFront(&cacheEntry{id: id, ctx: ctx})
	c.index[id] = el
	c.curBytes += size

	for c.curBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*cacheEntry)
		if entry.id == id {
			// never evict the entry we just inserted
			break
		}
		c.ll.Remove(back)
		delete(c.index, entry.id)
		c.curBytes -= entry.ctx.SizeBytes()
	}
	return ctx
}

// Invalidate removes id's cached entry, if any, and reclaims its bytes.
func (c *ContextCache) Invalidate(id runetypes.RuneId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		return
	}
	c.curBytes -= el.Value.(*cacheEntry).ctx.SizeBytes()
	c.ll.Remove(el)
	delete(c.index, id)
}

// UpdateSupplyExtra mutates the cached context's counter in place without
// touching LRU order (it is not a structural change to the context).
func (c *ContextCache) UpdateSupplyExtra(id runetypes.RuneId, v runetypes.Lot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		return
	}
	el.Value.(*cacheEntry).ctx.SupplyExtra = v
}

func (c *ContextCache) CurrentBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}
