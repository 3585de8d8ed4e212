// Package jnode implements the in-memory handle for one on-disk block: the
// journal node. Jnode is the common base for formatted tree nodes (znodes,
// see the tree package), unformatted file-body blocks, bitmap blocks, and
// inode-pinned blocks.
package jnode

import (
	"fmt"
	"sync"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/lease"
)

// Level identifies a jnode's position in the tree, or a sentinel for
// non-tree jnodes (bitmaps, unformatted blocks addressed by object+index).
type Level int

const (
	// LevelUnformatted marks jnodes that are not part of the tree's
	// node structure at all (bitmap blocks, raw file-body blocks).
	LevelUnformatted Level = 0
	LevelLeaf        Level = 1
	LevelTwig        Level = 2
	// Levels above Twig are plain internal levels; LevelLeaf+n for
	// increasing n as height grows.
)

// Flags is a bitmask of independent jnode state bits (§4.1).
type Flags uint32

const (
	FlagCreated Flags = 1 << iota
	FlagDirty
	FlagReloc
	FlagOvrwr
	FlagFlushQueued
	FlagWriteback
	FlagHeardBanshee
	FlagEflushed
	// FlagMissedInCapture marks a jnode that was read-locked without
	// capture (read on a non-captured, non-leaf node); see txn.Capture.
	FlagMissedInCapture
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	names := []struct {
		bit  Flags
		name string
	}{
		{FlagCreated, "CREATED"},
		{FlagDirty, "DIRTY"},
		{FlagReloc, "RELOC"},
		{FlagOvrwr, "OVRWR"},
		{FlagFlushQueued, "FLUSH_QUEUED"},
		{FlagWriteback, "WRITEBACK"},
		{FlagHeardBanshee, "HEARD_BANSHEE"},
		{FlagEflushed, "EFLUSHED"},
		{FlagMissedInCapture, "MISSED_IN_CAPTURE"},
	}
	s := ""
	for _, n := range names {
		if f.Has(n.bit) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "NONE"
	}
	return s
}

// AtomRef is the minimal view of an atom that a jnode needs to hold a
// pointer to one without creating an import cycle with the txn package,
// which owns the real Atom type and its capture lists.
type AtomRef interface {
	AtomID() uint64
}

// Subtype distinguishes the jnode variants named in spec.md §2.
type Subtype int

const (
	SubtypeFormatted Subtype = iota
	SubtypeUnformatted
	SubtypeBitmap
	SubtypeInode
)

// Node is a jnode. Short state is protected by Mu; callers follow the
// canonical lock order txnmgr -> atom -> jnode -> short state locks
// (spec.md §5) and never sleep while holding Mu.
type Node struct {
	Mu sync.Mutex

	// Identity.
	Subvolume uint32
	Blocknr   block.Addr
	subtype   Subtype
	level     Level

	// GUARDED_BY(Mu)
	flags Flags
	atom  AtomRef
	page  *lease.Page

	// Reference counts. xCount is external (tree-walk/lookup) references;
	// dCount counts loaded-content (data) references. Both GUARDED_BY(Mu).
	xCount int
	dCount int

	// owner is an opaque back-pointer a higher layer (the tree package, for
	// a formatted node) may attach without jnode importing that layer --
	// the same private-data pattern kernels use to let a generic object
	// carry a type-specific sibling without a dependency cycle.
	owner any
}

// SetOwner/Owner let the tree package attach (and flush/scan retrieve) the
// Znode wrapping this jnode, if any.
func (n *Node) SetOwner(o any) { n.owner = o }
func (n *Node) Owner() any     { return n.owner }

// New creates a jnode for the given identity. The page is created lazily on
// the first call to Page.
func New(subvolume uint32, addr block.Addr, subtype Subtype, level Level) *Node {
	return &Node{
		Subvolume: subvolume,
		Blocknr:   addr,
		subtype:   subtype,
		level:     level,
	}
}

func (n *Node) Subtype() Subtype { return n.subtype }
func (n *Node) Level() Level     { return n.level }

// Key identifies a jnode for hashing: (subvolume, blocknr) for allocated or
// fake-but-assigned blocks.
type Key struct {
	Subvolume uint32
	Blocknr   block.Addr
}

func (n *Node) HashKey() Key {
	return Key{Subvolume: n.Subvolume, Blocknr: n.Blocknr}
}

// Flags returns the current flag bitmask. Caller must hold Mu.
func (n *Node) Flags() Flags { return n.flags }

// Atom returns the atom this jnode is captured by, or nil.
func (n *Node) Atom() AtomRef { return n.atom }

// SetAtom binds (or clears, with nil) the jnode's atom pointer. Caller must
// hold Mu and, per spec.md, must also have arranged for the jnode to be on
// exactly one of the atom's capture lists (the txn package's job).
func (n *Node) SetAtom(a AtomRef) { n.atom = a }

// setFlag/clearFlag are unexported; all transitions go through the named
// methods below so invariants stay centralized and documented at the call
// site, mirroring jnode_make_dirty/jnode_make_clean/... in the original.
func (n *Node) setFlag(bit Flags)   { n.flags |= bit }
func (n *Node) clearFlag(bit Flags) { n.flags &^= bit }

// MakeDirty sets DIRTY. REQUIRES: n.atom != nil (capture already performed).
func (n *Node) MakeDirty() {
	if n.atom == nil {
		panic("jnode: MakeDirty on uncaptured node")
	}
	n.setFlag(FlagDirty)
}

// MakeCreated sets CREATED, marking a jnode that was allocated brand-new by
// the carry pipeline (splitNode/growRoot) rather than loaded from disk. A
// node carrying CREATED has no valid on-disk copy yet, so its eventual
// flush always needs a freshly allocated block: callers that set this also
// reserve that block against the atom's flushReserved budget (§4.1/§5) so
// commit can't run short of space accounting for nodes it hasn't written
// yet. REQUIRES: n.atom != nil.
func (n *Node) MakeCreated() {
	if n.atom == nil {
		panic("jnode: MakeCreated on uncaptured node")
	}
	n.setFlag(FlagCreated)
}

// MakeClean clears DIRTY, RELOC, OVRWR, CREATED, WRITEBACK: the state a
// jnode reaches once its commit-time write completes.
func (n *Node) MakeClean() {
	n.clearFlag(FlagDirty | FlagReloc | FlagOvrwr | FlagCreated | FlagWriteback)
}

// MakeReloc marks the jnode for relocate-on-commit. RELOC and OVRWR are
// mutually exclusive.
func (n *Node) MakeReloc() {
	if n.flags.Has(FlagOvrwr) {
		panic("jnode: MakeReloc on OVRWR node")
	}
	n.setFlag(FlagReloc)
}

// MakeWander marks the jnode for wandered-overwrite-on-commit.
func (n *Node) MakeWander() {
	if n.flags.Has(FlagReloc) {
		panic("jnode: MakeWander on RELOC node")
	}
	n.setFlag(FlagOvrwr)
}

// MakeFlushQueued marks the jnode as claimed by flush; it becomes
// unreachable via the dirty list for reordering until dequeued.
func (n *Node) MakeFlushQueued() { n.setFlag(FlagFlushQueued) }
func (n *Node) ClearFlushQueued() { n.clearFlag(FlagFlushQueued) }

// MarkWriteback records that a bio is in flight.
func (n *Node) MarkWriteback()   { n.setFlag(FlagWriteback) }
func (n *Node) ClearWriteback()  { n.clearFlag(FlagWriteback) }

// HearBanshee marks the jnode for deletion; most scans skip it.
func (n *Node) HearBanshee() { n.setFlag(FlagHeardBanshee) }

// MarkEflushed records that the page was evicted under memory pressure and
// its contents now live only in a wandered block.
func (n *Node) MarkEflushed()  { n.setFlag(FlagEflushed) }
func (n *Node) ClearEflushed() { n.clearFlag(FlagEflushed) }

// MarkMissedInCapture flags a jnode that was read-locked without capture
// (spec.md §4.2); a later write-capturer must walk its lock-owner set and
// fuse, per the missed-in-capture recovery rule.
func (n *Node) MarkMissedInCapture()  { n.setFlag(FlagMissedInCapture) }
func (n *Node) ClearMissedInCapture() { n.clearFlag(FlagMissedInCapture) }

// IncXCount/DecXCount manage external references (x_count).
func (n *Node) IncXCount() { n.xCount++ }
func (n *Node) DecXCount() {
	if n.xCount == 0 {
		panic("jnode: DecXCount underflow")
	}
	n.xCount--
}
func (n *Node) XCount() int { return n.xCount }

func (n *Node) IncDCount() { n.dCount++ }
func (n *Node) DecDCount() {
	if n.dCount == 0 {
		panic("jnode: DecDCount underflow")
	}
	n.dCount--
}
func (n *Node) DCount() int { return n.dCount }

// Evictable reports whether external refs are zero, the page (if any) has
// no pins, and the jnode is not captured -- the release condition from
// spec.md §3's Jnode lifecycle.
func (n *Node) Evictable() bool {
	if n.xCount != 0 || n.atom != nil {
		return false
	}
	if n.page != nil && !n.page.Evictable() {
		return false
	}
	return true
}

// Page returns the content buffer, allocating one of the given size on
// first use.
func (n *Node) Page(leaser *lease.Leaser, size int) *lease.Page {
	if n.page == nil {
		n.page = leaser.NewPage(size)
	}
	return n.page
}

// HasPage reports whether a page has been loaded.
func (n *Node) HasPage() bool { return n.page != nil }

// RawFlags and SetRawFlags support copy-on-capture (txn.performCOC), which
// needs to transplant one jnode's full state onto a freshly minted shadow
// and reset the original to a clean slate.
func (n *Node) RawFlags() Flags        { return n.flags }
func (n *Node) SetRawFlags(f Flags)    { n.flags = f }

// ResetForCOC clears a jnode back to an uncaptured, clean, pageless state:
// the "give the current handle a clean J to work on" step of §4.3.
func (n *Node) ResetForCOC() {
	n.flags = 0
	n.atom = nil
	n.page = nil
}

func (n *Node) String() string {
	return fmt.Sprintf("jnode{sv=%d blk=%v level=%d flags=%s}", n.Subvolume, n.Blocknr, n.level, n.flags)
}
