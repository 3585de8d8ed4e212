package tree

import (
	"sync"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
)

// Bias selects how CoordByKey reports a key that falls in a gap: the
// returned coordinate is the same under either bias, but FindExact reports
// NotFound and FindMaxNotMoreThan reports Found. Mirrors the original's FIND_EXACT /
// FIND_MAX_NOT_MORE_THAN distinction (spec.md §3).
type Bias int

const (
	FindExact Bias = iota
	FindMaxNotMoreThan
)

// LookupResult mirrors the original cbk_errno space: whether the key was
// found exactly, found via a gap coordinate, or does not exist under
// FindExact bias.
type LookupResult int

const (
	Found LookupResult = iota
	NotFound
)

// Tree is one height-indexed balanced tree: a root znode, the fake "above
// root" uber znode used as the root's parent (spec.md §4.1 Znode
// invariant), and a small coord-by-key cache.
type Tree struct {
	mu   sync.RWMutex
	root *Znode
	uber *Znode
	cbk  *cbkCache
}

// NewTree creates an empty tree with the given uber node (the fake parent
// of root) and cbk_cache_slots sized cache.
func NewTree(uber *Znode, cbkSlots int) *Tree {
	return &Tree{
		uber: uber,
		cbk:  newCBKCache(cbkSlots),
	}
}

// NewEmptyRoot creates a fresh leaf root spanning the whole key space,
// parented to the tree's uber node, for a newly formatted volume.
func NewEmptyRoot(subvolume uint32, addr block.Addr) (*Tree, *Znode) {
	uberJnode := jnode.New(subvolume, block.UberTreeAddr, jnode.SubtypeFormatted, jnode.LevelTwig+1)
	uber := NewZnode(uberJnode)
	uber.ldKey, uber.rdKey = key.Min, key.Max

	rootJnode := jnode.New(subvolume, addr, jnode.SubtypeFormatted, jnode.LevelLeaf)
	root := NewZnode(rootJnode)
	root.loaded = true
	root.SetParent(uber)

	t := NewTree(uber, 64)
	t.root = root
	return t, root
}

// Uber returns the tree's fake "above root" sentinel, the root's parent
// per spec.md §4.1's Znode invariant ("a node is above-root only if it is
// the UBER sentinel used as parent of the real root").
func (t *Tree) Uber() *Znode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.uber
}

func (t *Tree) Root() *Znode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// SetRoot replaces the tree's root, called by carry when the root splits or
// the tree shrinks by a level (spec.md §4.6).
func (t *Tree) SetRoot(z *Znode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	z.SetParent(t.uber)
	t.root = z
}

// CoordByKey implements the tree lookup operation (spec.md §3): walk from
// root to leaf, consulting the cbk cache first, descending via each
// internal node's lookup_key until the target level is reached.
func (t *Tree) CoordByKey(k key.Key, bias Bias, stopLevel jnode.Level) (Coord, LookupResult) {
	if c, ok := t.cbk.lookup(k); ok && c.Node.Level() == stopLevel && c.Node.CanContainKey(k) {
		return c, resultFor(c, k, bias)
	}

	cur := t.Root()
	for {
		c := lookupInNode(cur, k)
		if cur.Level() == stopLevel {
			t.cbk.insert(k, c)
			return c, resultFor(c, k, bias)
		}
		child := childAt(cur, c)
		if child == nil {
			return c, NotFound
		}
		cur = child
	}
}

func resultFor(c Coord, k key.Key, bias Bias) LookupResult {
	if c.Between == AtUnit {
		return Found
	}
	if bias == FindMaxNotMoreThan {
		return Found
	}
	return NotFound
}

// childAt resolves the downlink an internal node's coordinate points to,
// clamping gap coordinates to the nearest item (the original's "pick the
// child covering this key range" rule).
func childAt(z *Znode, c Coord) *Znode {
	items := z.Items()
	if len(items) == 0 {
		return nil
	}
	pos := c.ItemPos
	if c.Between == AfterItem || c.Between == AfterUnit {
		// fall through: pos already indexes the covering item
	}
	if c.Between == BeforeItem && pos > 0 {
		// the item at pos starts after the key; its left neighbour covers it
		pos--
	}
	if pos >= len(items) {
		pos = len(items) - 1
	}
	return items[pos].Child
}

// InvalidateCache drops cached coordinates referencing z, called before a
// carry op restructures it.
func (t *Tree) InvalidateCache(z *Znode) { t.cbk.invalidateNode(z) }
