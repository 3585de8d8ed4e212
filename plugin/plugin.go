// Package plugin defines the abstract node/item plugin contracts (spec.md
// §4.7): the only coupling point between the tree/carry/flush core and a
// particular on-disk item layout. The core never depends on a concrete
// plugin; it dispatches through these interfaces, keyed by a small plugin
// id carried in each node's header and each item's directory entry.
package plugin

import (
	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/tree"
)

// ID identifies a registered plugin, persisted in on-disk node/item
// headers so a mounted volume can dispatch to the implementation that
// wrote it, independent of the running binary's plugin registration order.
type ID uint16

const (
	IDStatData ID = iota + 1
	IDDirEntry
	IDExtent
	IDCtail
)

// NodePlugin exposes the operations a carry/tree operation needs to mutate
// one formatted node, without knowing its on-disk layout (spec.md §4.7).
type NodePlugin interface {
	ID() ID
	LookupKey(z *tree.Znode, k key.Key) tree.Coord
	NrUnits(z *tree.Znode, itemPos int) int
	ItemByCoord(c tree.Coord) (tree.Item, bool)
	Insert(z *tree.Znode, pos int, it tree.Item) error
	Paste(z *tree.Znode, pos int, data []byte) error
	Cut(z *tree.Znode, from, to int) error
	Shift(from, to *tree.Znode, nItems int, leftward bool) error
	UpdateItemKey(z *tree.Znode, pos int, k key.Key) error
	MaxItemSize() int
	Check(z *tree.Znode) error
}

// ItemPlugin exposes the operations specific to one item's payload
// (spec.md §4.7): unit counting/splitting, flow estimation for writes, and
// cleanup hooks run when an item is created or destroyed.
type ItemPlugin interface {
	ID() ID
	NrUnits(it tree.Item) int
	UnitKey(it tree.Item, unit int) key.Key
	EstimateInsert(payload []byte) int
	CanShift(it tree.Item, maxBytes int) int
	CopyUnits(dst, src tree.Item, from, count int) tree.Item
	CreateHook(it tree.Item) error
	KillHook(it tree.Item) error
	KillUnits(it tree.Item, from, to int) tree.Item
}

// Registry maps plugin ids to implementations, the dispatch table every
// node header's plugin id is resolved through (spec.md §9 design note on
// modeling plugin dispatch as a trait-object registry).
type Registry struct {
	nodes map[ID]NodePlugin
	items map[ID]ItemPlugin
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[ID]NodePlugin), items: make(map[ID]ItemPlugin)}
}

func (r *Registry) RegisterNode(p NodePlugin) { r.nodes[p.ID()] = p }
func (r *Registry) RegisterItem(p ItemPlugin) { r.items[p.ID()] = p }

func (r *Registry) Node(id ID) (NodePlugin, bool) {
	p, ok := r.nodes[id]
	return p, ok
}

func (r *Registry) Item(id ID) (ItemPlugin, bool) {
	p, ok := r.items[id]
	return p, ok
}
