// Package flush implements scan/relocate-decision/squalloc (spec.md §4.8):
// the step of commit that squeezes each atom's dirty nodes into
// contiguous runs ("slums"), decides whether each run relocates to a new
// block or overwrites its old one via the wandering log, and hands the
// result to the wander package's commit pipeline.
package flush

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/tree"
	"github.com/reiser4/reiser4fs/txn"
)

// Params are the flush heuristics bound from mount options (spec.md §6).
type Params struct {
	ScanMaxNodes      int
	RelocateThreshold int
	RelocateDistance  uint64
	WrittenThreshold  int
}

// Allocator is the block-allocation surface flush needs: handing out a
// fresh block near a locality hint for RELOC nodes. Defined here (not in
// the allocator package) so flush has no dependency on allocator's
// concrete bitmap implementation; allocator.Bitmap satisfies this
// structurally.
type Allocator interface {
	Allocate(hint block.Addr) (newAddr block.Addr, err error)
}

// Flusher drives squalloc across one atom's dirty set.
type Flusher struct {
	Params Params
	Alloc  Allocator
	Queues *Queues
}

func NewFlusher(p Params, alloc Allocator) *Flusher {
	return &Flusher{Params: p, Alloc: alloc, Queues: NewQueues()}
}

// Flush implements txn.CommitDriver.Flush (spec.md §4.9 steps 2-4): scans a
// slum from each still-dirty, not yet flush-queued leaf or twig node and
// runs squalloc on it, until none is left. Dirty nodes above the twig
// level are not scanned.
func (f *Flusher) Flush(a *txn.Atom) error {
	for {
		leaves := a.DirtyAtLevel(jnode.LevelLeaf)
		twigs := a.DirtyAtLevel(jnode.LevelTwig)
		if len(leaves) == 0 && len(twigs) == 0 {
			return nil
		}
		start := pickStart(leaves, twigs)
		if start == nil {
			return nil
		}
		slum, err := f.Scan(a, start)
		if err != nil {
			return err
		}
		if len(slum) == 0 {
			// Nothing scannable from this node (not actually a znode, or
			// already flush-queued); drop it so the loop doesn't spin.
			start.MakeFlushQueued()
			continue
		}
		if err := f.Squalloc(a, slum); err != nil {
			return err
		}
	}
}

func pickStart(leaves, twigs []*jnode.Node) *jnode.Node {
	for _, n := range leaves {
		if !n.Flags().Has(jnode.FlagFlushQueued) {
			return n
		}
	}
	for _, n := range twigs {
		if !n.Flags().Has(jnode.FlagFlushQueued) {
			return n
		}
	}
	return nil
}

// Scan extends a slum left and right from start, bounded by
// Params.ScanMaxNodes, counting only adjacent dirty jnodes captured by the
// same atom (spec.md §4.8 step 1). Left and right run concurrently via
// errgroup since they are independent once start is fixed.
func (f *Flusher) Scan(a *txn.Atom, start *jnode.Node) ([]*jnode.Node, error) {
	z, ok := start.Owner().(*tree.Znode)
	if !ok || z == nil {
		return nil, nil
	}

	var left, right []*jnode.Node
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		left = f.scanDirection(a, z, func(n *tree.Znode) *tree.Znode { return n.Left() })
		return nil
	})
	g.Go(func() error {
		right = f.scanDirection(a, z, func(n *tree.Znode) *tree.Znode { return n.Right() })
		return nil
	})
	_ = g.Wait()

	slum := make([]*jnode.Node, 0, len(left)+1+len(right))
	// left was collected outward from start, so reverse it before start.
	for i := len(left) - 1; i >= 0; i-- {
		slum = append(slum, left[i])
	}
	slum = append(slum, start)
	slum = append(slum, right...)
	return slum, nil
}

func (f *Flusher) scanDirection(a *txn.Atom, from *tree.Znode, step func(*tree.Znode) *tree.Znode) []*jnode.Node {
	max := f.Params.ScanMaxNodes
	if max <= 0 {
		max = 32
	}
	var out []*jnode.Node
	cur := step(from)
	for len(out) < max && cur != nil {
		if !sameAtomDirty(cur.Node, a) {
			break
		}
		out = append(out, cur.Node)
		cur = step(cur)
	}
	return out
}

func sameAtomDirty(n *jnode.Node, a *txn.Atom) bool {
	if !n.Flags().Has(jnode.FlagDirty) || n.Flags().Has(jnode.FlagFlushQueued) || n.Flags().Has(jnode.FlagHeardBanshee) {
		return false
	}
	owner, _ := n.Atom().(*txn.Atom)
	return owner == a
}
