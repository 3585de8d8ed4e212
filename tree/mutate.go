package tree

import (
	"sort"

	"github.com/reiser4/reiser4fs/key"
)

// The operations below are the node-plugin primitives named in spec.md
// §4.7 (insert, paste, cut, shift, update_item_key): carry's op handlers
// call these directly on a znode once they've resolved which node a given
// op actually targets.

// Insert adds a new item at the given position, shifting later items
// right. Used for a brand-new key with no existing item to paste into.
func (z *Znode) Insert(pos int, it Item) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.items = append(z.items, Item{})
	copy(z.items[pos+1:], z.items[pos:])
	z.items[pos] = it
	z.version++
}

// Paste appends data onto an existing item's value (e.g. extending a tail
// or directory-entry item in place) rather than creating a new item.
func (z *Znode) Paste(pos int, extra []byte) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.items[pos].Value = append(z.items[pos].Value, extra...)
	z.version++
}

// Cut removes items in [from, to).
func (z *Znode) Cut(from, to int) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.items = append(z.items[:from], z.items[to:]...)
	z.version++
}

// UpdateItemKey rewrites the key of the item at pos, used when a cut at the
// front of an item changes its effective starting key.
func (z *Znode) UpdateItemKey(pos int, k key.Key) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.items[pos].Key = k
	z.version++
}

// Size estimates the node's occupied space in bytes, the node-plugin
// "estimate" operation carry's balancing decisions are based on.
func (z *Znode) Size() int {
	z.mu.RLock()
	defer z.mu.RUnlock()
	n := 0
	for _, it := range z.items {
		n += len(it.Value) + 40 // item header + key, approximated
	}
	return n
}

// ShiftLeft moves the first n items of z onto the tail of left, updating
// both nodes' delimiting keys to preserve the sibling invariant
// A.RDKey() == B.LDKey() (spec.md §8).
func ShiftLeft(z, left *Znode, n int) {
	z.mu.Lock()
	moved := append([]Item(nil), z.items[:n]...)
	z.items = z.items[n:]
	z.version++
	var newBoundary key.Key
	if len(z.items) > 0 {
		newBoundary = z.items[0].Key
	} else {
		newBoundary = z.rdKey
	}
	z.mu.Unlock()

	left.mu.Lock()
	left.items = append(left.items, moved...)
	left.version++
	left.mu.Unlock()

	left.SetDelimitingKeys(left.LDKey(), newBoundary)
	z.SetDelimitingKeys(newBoundary, z.RDKey())
}

// ShiftRight is the mirror of ShiftLeft: moves the last n items of z onto
// the head of right.
func ShiftRight(z, right *Znode, n int) {
	z.mu.Lock()
	cut := len(z.items) - n
	moved := append([]Item(nil), z.items[cut:]...)
	z.items = z.items[:cut]
	z.version++
	boundary := moved[0].Key
	z.mu.Unlock()

	right.mu.Lock()
	right.items = append(append([]Item(nil), moved...), right.items...)
	right.version++
	right.mu.Unlock()

	z.SetDelimitingKeys(z.LDKey(), boundary)
	right.SetDelimitingKeys(boundary, right.RDKey())
}

// SortItems re-sorts the item array by key, used after bulk construction
// (e.g. when assembling a brand-new split node from carry).
func (z *Znode) SortItems() {
	z.mu.Lock()
	defer z.mu.Unlock()
	sort.Slice(z.items, func(i, j int) bool { return key.Less(z.items[i].Key, z.items[j].Key) })
	z.version++
}

// Mergeable reports whether z and other could be merged into one node
// without exceeding a typical node's capacity (node-plugin "mergeable").
func Mergeable(z, other *Znode, maxSize int) bool {
	return z.Size()+other.Size() <= maxSize
}
