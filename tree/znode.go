// Package tree implements the height-indexed balanced tree over keys
// (spec.md §3 Tree, §4.1 Znode): formatted nodes holding sorted items, with
// sibling links and delimiting keys maintained across balancing.
package tree

import (
	"sync"

	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
)

// Item is one unit stored in a znode: a leaf item (stat-data, directory
// entry, extent pointer, tail bytes) or, for internal nodes, a downlink.
type Item struct {
	Key   key.Key
	Value []byte     // leaf payload, plugin-interpreted
	Child *Znode     // non-nil only in internal nodes: the pointed-to child
}

// Znode is a jnode variant representing a formatted tree node (spec.md
// §4.1). It embeds the jnode state machine and adds sibling pointers,
// delimiting keys, and the sorted item array a node plugin operates on.
type Znode struct {
	*jnode.Node

	mu sync.RWMutex

	parent *Znode
	left   *Znode
	right  *Znode

	ldKey key.Key
	rdKey key.Key

	loaded    bool // parsed by node plugin
	connected bool // sibling pointers established
	version   uint64

	items []Item
}

// NewZnode creates an unloaded znode wrapping the given jnode. The node's
// level is carried by the jnode itself (Node.Level()).
func NewZnode(n *jnode.Node) *Znode {
	z := &Znode{
		Node:  n,
		ldKey: key.Min,
		rdKey: key.Max,
	}
	n.SetOwner(z)
	return z
}

// LDKey/RDKey return the node's delimiting keys (spec.md §4.1 invariant:
// for adjacent siblings A < B, A.RDKey() == B.LDKey()).
func (z *Znode) LDKey() key.Key {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.ldKey
}

func (z *Znode) RDKey() key.Key {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.rdKey
}

func (z *Znode) SetDelimitingKeys(ld, rd key.Key) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.ldKey, z.rdKey = ld, rd
	z.version++
}

func (z *Znode) Left() *Znode  { z.mu.RLock(); defer z.mu.RUnlock(); return z.left }
func (z *Znode) Right() *Znode { z.mu.RLock(); defer z.mu.RUnlock(); return z.right }
func (z *Znode) Parent() *Znode { z.mu.RLock(); defer z.mu.RUnlock(); return z.parent }

func (z *Znode) SetParent(p *Znode) { z.mu.Lock(); defer z.mu.Unlock(); z.parent = p }

// LinkSiblings establishes left<->right sibling pointers and marks both
// connected, maintaining the half-open delimiting-key range across the
// pair (spec.md §8 tree-balance property).
func LinkSiblings(left, right *Znode) {
	left.mu.Lock()
	left.right = right
	left.connected = true
	left.mu.Unlock()

	right.mu.Lock()
	right.left = left
	right.connected = true
	right.mu.Unlock()
}

func (z *Znode) Connected() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.connected
}

// Items returns a snapshot of the node's sorted items. Caller must hold no
// expectation of mutation through the returned slice.
func (z *Znode) Items() []Item {
	z.mu.RLock()
	defer z.mu.RUnlock()
	out := make([]Item, len(z.items))
	copy(out, z.items)
	return out
}

func (z *Znode) NrItems() int {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return len(z.items)
}

// MaxKeyInside returns the node's right delimiting key, the exclusive upper
// bound on the keys it can hold.
func (z *Znode) MaxKeyInside() key.Key { return z.RDKey() }

// CanContainKey reports whether k falls within [ldKey, rdKey).
func (z *Znode) CanContainKey(k key.Key) bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return !key.Less(k, z.ldKey) && key.Less(k, z.rdKey)
}
