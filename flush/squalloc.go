package flush

import (
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/txn"
)

// Squalloc implements spec.md §4.8 steps 2-4 for one slum: every member
// must be DIRTY and not yet flush-prepped on entry; on exit every member
// is either RELOC with a freshly allocated block, or OVRWR with its
// original block and a pending wandered copy, and is placed on a flush
// queue.
func (f *Flusher) Squalloc(a *txn.Atom, slum []*jnode.Node) error {
	reloc := decideReloc(f.Params, slum)

	for _, n := range slum {
		n.Mu.Lock()
		if !n.Flags().Has(jnode.FlagDirty) || n.Flags().Has(jnode.FlagFlushQueued) {
			n.Mu.Unlock()
			continue
		}
		original := n.Blocknr
		wasCreated := n.Flags().Has(jnode.FlagCreated)
		if reloc {
			newAddr, err := f.Alloc.Allocate(original)
			if err != nil {
				n.Mu.Unlock()
				return err
			}
			// A CREATED node's Blocknr is a fake address (block.NewFake),
			// never a real allocation -- there is nothing to return to the
			// allocator's free list for it.
			if !wasCreated {
				a.RecordFreed(original)
			}
			n.Blocknr = newAddr
			n.MakeReloc()
		} else {
			wandered, err := f.Alloc.Allocate(original)
			if err != nil {
				n.Mu.Unlock()
				return err
			}
			a.RecordWandered(original, wandered)
			n.MakeWander()
		}
		// The block this node needed has now actually been allocated, so
		// its share of the atom's speculative flushReserved budget (taken
		// out at capture time, see jnode.Node.MakeCreated) is no longer
		// outstanding.
		if wasCreated {
			a.ReserveFlush(-1)
		}
		n.MakeFlushQueued()
		n.Mu.Unlock()
		f.Queues.Enqueue(n.Subvolume, n)
	}
	return nil
}

// decideReloc implements spec.md §4.8 step 2: a slum relocates when it is
// large enough (RelocateThreshold) to be worth the seek cost of a fresh
// contiguous allocation. The decision depends on slum size alone:
// RelocateDistance (distance from a preceder hint) is not read here, nor by
// allocator.Bitmap.Allocate.
func decideReloc(p Params, slum []*jnode.Node) bool {
	if p.RelocateThreshold <= 0 {
		return false
	}
	return len(slum) >= p.RelocateThreshold
}
