package txn

import (
	"errors"

	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/lease"
)

// errCOCIneligible is returned internally when COC cannot apply and the
// caller must instead block in fuse_wait (spec.md §4.3).
var errCOCIneligible = errors.New("txn: node not eligible for copy-on-capture")

// PerformCOC implements spec.md §4.3. J is captured by a committing atom B
// (B.Stage() > StageCaptureWait) and the current handle needs to mutate it.
// On success it returns a new shadow jnode that stays captured by B and
// will still commit with B's contents, while n is reset to a clean,
// uncaptured state the caller may now capture fresh into its own atom.
//
// COC only applies to OVRWR (not RELOC) nodes that are not currently being
// written back and have not been evicted (EFLUSHED): an evicted node has
// already detached its page, so there is nothing local to copy and the
// capturer must wait for a refault instead (spec.md §9's flagged COC/eflush
// interaction -- resolved conservatively here by excluding EFLUSHED).
//
// REQUIRES: caller holds b.mu.
func PerformCOC(n *jnode.Node, b *Atom, leaser *lease.Leaser, pageSize int) (*jnode.Node, error) {
	f := n.RawFlags()
	if !f.Has(jnode.FlagOvrwr) || f.Has(jnode.FlagReloc) || f.Has(jnode.FlagWriteback) || f.Has(jnode.FlagEflushed) {
		return nil, errCOCIneligible
	}

	shadow := jnode.New(n.Subvolume, n.Blocknr, n.Subtype(), n.Level())
	shadow.SetRawFlags(f)

	if n.HasPage() {
		oldPage := n.Page(leaser, pageSize)
		newPage := shadow.Page(leaser, pageSize)
		newPage.Set(oldPage.Get())
	}

	shadow.SetAtom(b)
	b.placeJnode(shadow, nil) // insert shadow per its (copied) flags
	for _, m := range b.allLists() {
		delete(m, n) // n's slot is now held by shadow, not n
	}

	n.ResetForCOC()
	return shadow, nil
}
