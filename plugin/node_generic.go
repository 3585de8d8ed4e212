package plugin

import (
	"fmt"

	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/tree"
)

// genericNode is the one node plugin this repository ships (spec.md's
// Non-goals exclude "particular item/node format plugins beyond the
// abstract interfaces"): it implements the node-plugin contract directly
// in terms of tree.Znode's sorted-item array, which is itself already
// layout-agnostic. A real on-disk-format plugin would replace this with
// one that (de)serializes a fixed-size block; this one is the reference
// implementation the core is tested against.
type genericNode struct{}

// NodePluginGeneric satisfies the NodePlugin contract for ordinary formatted
// nodes (leaves, internal nodes, the twig level).
var NodePluginGeneric NodePlugin = genericNode{}

func (genericNode) ID() ID { return IDStatData }

func (genericNode) LookupKey(z *tree.Znode, k key.Key) tree.Coord {
	return tree.LookupInNode(z, k)
}

func (genericNode) NrUnits(z *tree.Znode, itemPos int) int {
	items := z.Items()
	if itemPos < 0 || itemPos >= len(items) {
		return 0
	}
	return len(items[itemPos].Value)
}

func (genericNode) ItemByCoord(c tree.Coord) (tree.Item, bool) { return c.Item() }

func (genericNode) Insert(z *tree.Znode, pos int, it tree.Item) error {
	z.Insert(pos, it)
	return nil
}

func (genericNode) Paste(z *tree.Znode, pos int, data []byte) error {
	if pos < 0 || pos >= z.NrItems() {
		return fmt.Errorf("plugin: paste at out-of-range position %d", pos)
	}
	z.Paste(pos, data)
	return nil
}

func (genericNode) Cut(z *tree.Znode, from, to int) error {
	if from < 0 || to > z.NrItems() || from > to {
		return fmt.Errorf("plugin: cut range [%d,%d) out of bounds", from, to)
	}
	z.Cut(from, to)
	return nil
}

func (genericNode) Shift(from, to *tree.Znode, nItems int, leftward bool) error {
	if leftward {
		tree.ShiftLeft(from, to, nItems)
	} else {
		tree.ShiftRight(from, to, nItems)
	}
	return nil
}

func (genericNode) UpdateItemKey(z *tree.Znode, pos int, k key.Key) error {
	z.UpdateItemKey(pos, k)
	return nil
}

// MaxItemSize is conservative: a quarter of a typical 4K node, leaving room
// for several items per node so balancing has material to work with.
func (genericNode) MaxItemSize() int { return 1024 }

func (genericNode) Check(z *tree.Znode) error {
	items := z.Items()
	for i := 1; i < len(items); i++ {
		if !key.Less(items[i-1].Key, items[i].Key) {
			return fmt.Errorf("plugin: node %v items out of order at %d", z.HashKey(), i)
		}
	}
	return nil
}
