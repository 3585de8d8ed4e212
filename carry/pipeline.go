package carry

import (
	"fmt"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/plugin"
	"github.com/reiser4/reiser4fs/tree"
	"github.com/reiser4/reiser4fs/txn"
)

// requeueDirty re-places z on its atom's dirty list after a flag change,
// since Atom.Requeue -- not MakeDirty itself -- is the choke point that
// keeps capture-list membership consistent with jnode state (spec.md §4.1).
// A node carry touches before it has ever been captured (shouldn't happen
// in practice -- capture precedes any mutating tree operation) is left
// alone.
func requeueDirty(z *tree.Znode) {
	if a, ok := z.Atom().(*txn.Atom); ok && a != nil {
		a.Requeue(z.Node)
	}
}

// maxNodeItems bounds how many items one node holds in this in-memory
// model before carry splits it; spec.md's Non-goals exclude a particular
// on-disk node layout, so there is no fixed block-size budget to derive
// this from -- it stands in for the node plugin's max_item_size-driven
// capacity check a real layout would run instead.
const maxNodeItems = 8

// Carry runs the balancing pipeline to completion (spec.md §4.6): drains
// doing's ops, collects whatever new ops handlers post against the next
// level up, and repeats until a level produces nothing further. Growing
// the tree's root is handled inline by the insert handler when a split's
// parent doesn't exist yet.
func Carry(tr *tree.Tree, reg *plugin.Registry, pool *Pool, doing *Level) error {
	for !doing.IsEmpty() {
		next := NewLevel(doing.Height + 1)
		for _, op := range doing.Ops {
			if err := handle(tr, reg, pool, op, next); err != nil {
				return fmt.Errorf("carry: level %d op %s: %w", doing.Height, op.Kind, err)
			}
		}
		doing = next
	}
	return nil
}

func handle(tr *tree.Tree, reg *plugin.Registry, pool *Pool, op *Op, next *Level) error {
	z := op.Target.Resolve()
	if z == nil {
		return fmt.Errorf("carry: op %s target did not resolve", op.Kind)
	}
	np, ok := reg.Node(plugin.IDStatData)
	if !ok {
		np = plugin.NodePluginGeneric
	}
	tr.InvalidateCache(z)

	switch op.Kind {
	case OpInsert, OpExtent, OpInsertFlow:
		c := np.LookupKey(z, op.Key)
		pos := c.ItemPos
		if c.Between != tree.AtUnit && c.Between != tree.EmptyNode && pos < z.NrItems() {
			if key.Less(z.Items()[pos].Key, op.Key) {
				pos++
			}
		}
		if c.Between == tree.EmptyNode {
			pos = 0
		}
		if err := np.Insert(z, pos, op.Item); err != nil {
			return err
		}
		z.MakeDirty()
		requeueDirty(z)
		return maybeSplit(tr, pool, z, next)

	case OpPaste:
		if err := np.Paste(z, op.From, op.Data); err != nil {
			return err
		}
		z.MakeDirty()
		requeueDirty(z)
		return nil

	case OpCut, OpDelete:
		if err := np.Cut(z, op.From, op.To); err != nil {
			return err
		}
		z.MakeDirty()
		requeueDirty(z)
		if z.NrItems() == 0 {
			z.HearBanshee()
			return postParentRemoval(z, next)
		}
		return nil

	case OpUpdate:
		if err := np.UpdateItemKey(z, op.From, op.Key); err != nil {
			return err
		}
		z.MakeDirty()
		requeueDirty(z)
		return postParentKeyUpdate(z, op.Key, next)

	case OpModify:
		return np.Check(z)

	default:
		return fmt.Errorf("carry: unknown op kind %d", op.Kind)
	}
}

// maybeSplit checks z's occupancy and, if over budget, splits it in two,
// posting (or immediately applying, if z has no parent yet) an INSERT for
// the new sibling's downlink against the parent level (spec.md §4.6 step
// 2's "may also allocate new sibling nodes and post INSERT ops for them
// against the parent level").
func maybeSplit(tr *tree.Tree, pool *Pool, z *tree.Znode, next *Level) error {
	if z.NrItems() <= maxNodeItems {
		return nil
	}
	sib := splitNode(z, block.NewFake())
	captureSibling(z, sib)

	parent := z.Parent()
	if parent == nil || parent == z || parent == tr.Uber() {
		growRoot(tr, z, sib)
		return nil
	}

	op := pool.Alloc()
	*op = Op{
		Kind:   OpInsert,
		Target: CarryNode{Kind: RefParentOf, Base: z},
		Key:    sib.LDKey(),
		Item:   tree.Item{Key: sib.LDKey(), Child: sib},
	}
	next.Post(op)
	return nil
}

// captureSibling joins a freshly split-off sibling to the same atom as the
// node it split from and marks it dirty, so the new node is reachable from
// flush.Scan's atom dirty-list walk instead of being invisible to the
// commit pipeline (spec.md §4.6: splitting "may also allocate new sibling
// nodes", and those are jnodes like any other -- they need capture before
// any other thread can observe or commit their contents). z is always
// already captured here: maybeSplit only runs against a node a carry op
// just mutated, and mutation requires capture first. sib is always a node
// splitNode/growRoot just allocated, never one loaded from disk, so it also
// picks up CREATED and reserves a block against the atom's flush budget
// (spec.md §4.1/§5) -- without this, commit has no accounting for blocks
// that must be allocated for nodes with no prior on-disk copy.
func captureSibling(z, sib *tree.Znode) {
	a, ok := z.Atom().(*txn.Atom)
	if !ok || a == nil {
		return
	}
	a.CaptureJnode(sib.Node)
	sib.MakeCreated()
	a.ReserveFlush(1)
	sib.MakeDirty()
	a.Requeue(sib.Node)
}

// splitNode moves the upper half of z's items into a freshly created right
// sibling, preserving the sibling-delimiting-key invariant (spec.md §8).
func splitNode(z *tree.Znode, addr block.Addr) *tree.Znode {
	n := jnode.New(z.Subvolume, addr, jnode.SubtypeFormatted, z.Level())
	sib := tree.NewZnode(n)
	sib.SetDelimitingKeys(z.LDKey(), z.RDKey())

	total := z.NrItems()
	move := total - total/2
	tree.ShiftRight(z, sib, move)

	oldRight := z.Right()
	tree.LinkSiblings(z, sib)
	if oldRight != nil && oldRight != sib {
		tree.LinkSiblings(sib, oldRight)
	}
	return sib
}

// growRoot creates a new internal root over left and right when a split
// has no parent to post an INSERT against: the "Growing the tree past the
// current root height creates a new root exactly once per carry
// invocation" edge case (spec.md §8).
func growRoot(tr *tree.Tree, left, right *tree.Znode) {
	n := jnode.New(left.Subvolume, block.NewFake(), jnode.SubtypeFormatted, left.Level()+1)
	root := tree.NewZnode(n)
	root.SetDelimitingKeys(key.Min, key.Max)
	root.Insert(0, tree.Item{Key: left.LDKey(), Child: left})
	root.Insert(1, tree.Item{Key: right.LDKey(), Child: right})

	left.SetParent(root)
	right.SetParent(root)
	tr.SetRoot(root)
	captureSibling(left, root)
}

// postParentRemoval posts a DELETE against the parent level for the
// downlink pointing at a node that just emptied its last item (spec.md
// §8's HEARD_BANSHEE + DELETE-to-parent edge case).
func postParentRemoval(z *tree.Znode, next *Level) error {
	parent := z.Parent()
	if parent == nil {
		return nil
	}
	items := parent.Items()
	for i, it := range items {
		if it.Child == z {
			op := &Op{Kind: OpDelete, Target: CarryNode{Kind: RefDirect, Base: parent}, From: i, To: i + 1}
			next.Post(op)
			return nil
		}
	}
	return nil
}

// postParentKeyUpdate propagates a child's new lowest key up to the
// parent's downlink item, maintaining delimiting-key consistency after a
// cut shrinks the child's key range from the left (spec.md §3 carry_op
// UPDATE: "delimiting-key maintenance").
func postParentKeyUpdate(z *tree.Znode, newKey key.Key, next *Level) error {
	parent := z.Parent()
	if parent == nil {
		return nil
	}
	items := parent.Items()
	for i, it := range items {
		if it.Child == z {
			op := &Op{Kind: OpUpdate, Target: CarryNode{Kind: RefDirect, Base: parent}, From: i, Key: newKey}
			next.Post(op)
			return nil
		}
	}
	return nil
}
