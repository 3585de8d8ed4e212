package tree

import "github.com/reiser4/reiser4fs/key"

// Between records whether a coordinate lands exactly on a unit or in the
// gap before/after one (spec.md §3 Coord).
type Between int

const (
	AtUnit Between = iota
	BeforeUnit
	AfterUnit
	BeforeItem
	AfterItem
	EmptyNode
)

// Coord locates a point inside a node: an item position, a unit position
// within that item, and a Between qualifier disambiguating exact hits from
// gaps (spec.md §3).
type Coord struct {
	Node     *Znode
	ItemPos  int
	UnitPos  int
	Between  Between
}

// Item returns the item this coordinate's ItemPos refers to, or the zero
// Item if out of range.
func (c Coord) Item() (Item, bool) {
	items := c.Node.Items()
	if c.ItemPos < 0 || c.ItemPos >= len(items) {
		return Item{}, false
	}
	return items[c.ItemPos], true
}

// LookupInNode is the exported entry point node plugins dispatch to for
// lookup_key (spec.md §4.7): see lookupInNode.
func LookupInNode(z *Znode, k key.Key) Coord { return lookupInNode(z, k) }

// lookupInNode performs the node-plugin's lookup_key operation: binary
// search c's items for k, returning the coordinate of k if present, or the
// gap coordinate where it would be inserted (spec.md §4.7 lookup_key).
func lookupInNode(z *Znode, k key.Key) Coord {
	items := z.Items()
	if len(items) == 0 {
		return Coord{Node: z, Between: EmptyNode}
	}

	lo, hi := 0, len(items)
	for lo < hi {
		mid := (lo + hi) / 2
		if key.Less(items[mid].Key, k) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(items) && key.Equal(items[lo].Key, k) {
		return Coord{Node: z, ItemPos: lo, Between: AtUnit}
	}
	if lo == 0 {
		return Coord{Node: z, ItemPos: 0, Between: BeforeItem}
	}
	if lo == len(items) {
		return Coord{Node: z, ItemPos: len(items) - 1, Between: AfterItem}
	}
	return Coord{Node: z, ItemPos: lo, Between: BeforeItem}
}
