package tree

import (
	"container/list"
	"sync"

	"github.com/reiser4/reiser4fs/key"
)

// cbkCache is the coord-by-key cache (spec.md §6 cbk_cache_slots): a small
// bounded LRU mapping a recently looked-up key to the leaf coordinate that
// resolved it, so repeated lookups of nearby keys skip the root-to-leaf
// walk. No pack repo ships a standalone generic LRU as an importable
// library, so this follows the standard container/list + map recipe used
// throughout the Go ecosystem for exactly this purpose.
type cbkCache struct {
	mu    sync.Mutex
	slots int
	ll    *list.List
	index map[key.Key]*list.Element
}

type cbkEntry struct {
	key   key.Key
	coord Coord
}

func newCBKCache(slots int) *cbkCache {
	if slots <= 0 {
		slots = 16
	}
	return &cbkCache{
		slots: slots,
		ll:    list.New(),
		index: make(map[key.Key]*list.Element),
	}
}

func (c *cbkCache) lookup(k key.Key) (Coord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index[k]
	if !ok {
		return Coord{}, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*cbkEntry).coord, true
}

func (c *cbkCache) insert(k key.Key, coord Coord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.index[k]; ok {
		e.Value.(*cbkEntry).coord = coord
		c.ll.MoveToFront(e)
		return
	}
	e := c.ll.PushFront(&cbkEntry{key: k, coord: coord})
	c.index[k] = e
	if c.ll.Len() > c.slots {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cbkEntry).key)
		}
	}
}

// invalidateNode drops any cached coordinate for a node that is about to be
// restructured, so a stale ItemPos/UnitPos is never served after balancing.
func (c *cbkCache) invalidateNode(z *Znode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.ll.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*cbkEntry).coord.Node == z {
			c.ll.Remove(e)
			delete(c.index, e.Value.(*cbkEntry).key)
		}
		e = next
	}
}
