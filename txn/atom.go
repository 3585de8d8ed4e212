package txn

import (
	"sync"
	"time"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/jnode"
)

// Stage is an atom's position in its commit lifecycle (spec.md §3). Stage
// progression is monotonic.
type Stage int

const (
	StageFree Stage = iota
	StageCaptureFuse
	StageCaptureWait
	StagePreCommit
	StageDone
	StageInvalid
)

func (s Stage) String() string {
	return [...]string{"FREE", "CAPTURE_FUSE", "CAPTURE_WAIT", "PRE_COMMIT", "DONE", "INVALID"}[s]
}

// AtomFlags are atom-level flags.
type AtomFlags uint32

const (
	AtomForceCommit AtomFlags = 1 << iota
)

// waiter represents one thread blocked on an atom's progress.
type waiter struct {
	ready chan struct{}
}

func newWaiter() *waiter { return &waiter{ready: make(chan struct{})} }
func (w *waiter) wake() {
	select {
	case <-w.ready:
		// already woken
	default:
		close(w.ready)
	}
}

// Atom is the unit of atomicity: a set of captured jnodes and joined
// transaction handles committed together (spec.md §3, §4.9).
type Atom struct {
	mu sync.Mutex

	id        uint64
	stage     Stage
	flags     AtomFlags
	refcount  int
	startTime time.Time
	clock     clockSource

	// Per-level dirty lists, clean list, overwrite list, writeback list,
	// inode list (spec.md §3/§4.1 invariant: every jnode lives on exactly
	// one of these while captured, or none once HEARD_BANSHEE removed it
	// from further scanning -- HEARD_BANSHEE nodes stay on their current
	// list but scans skip them).
	dirty     map[jnode.Level]map[*jnode.Node]struct{}
	clean     map[*jnode.Node]struct{}
	ovrwr     map[*jnode.Node]struct{}
	writeback map[*jnode.Node]struct{}
	inodes    map[*jnode.Node]struct{}

	txnhList map[*Handle]struct{}

	fwaitfor []*waiter // threads waiting for some atom to progress
	fwaiting []*waiter // threads waiting for their own atom to progress

	deleteSet   map[block.Addr]struct{}
	wanderedMap map[block.Addr]block.Addr

	captureCount   int
	txnhCount      int
	nrQueued       int
	nrFlushers     int
	nrWaiters      int
	nrRunningQueues int
	flushReserved  int

	commitErr error
}

type clockSource interface {
	Now() time.Time
}

func newAtom(id uint64, clk clockSource) *Atom {
	return &Atom{
		id:          id,
		stage:       StageCaptureFuse,
		startTime:   clk.Now(),
		clock:       clk,
		dirty:       make(map[jnode.Level]map[*jnode.Node]struct{}),
		clean:       make(map[*jnode.Node]struct{}),
		ovrwr:       make(map[*jnode.Node]struct{}),
		writeback:   make(map[*jnode.Node]struct{}),
		inodes:      make(map[*jnode.Node]struct{}),
		txnhList:    make(map[*Handle]struct{}),
		deleteSet:   make(map[block.Addr]struct{}),
		wanderedMap: make(map[block.Addr]block.Addr),
		refcount:    1, // the "until-commit" reference held from creation to end of PRE_COMMIT
	}
}

// AtomID satisfies jnode.AtomRef.
func (a *Atom) AtomID() uint64 { return a.id }

// Stage returns the current stage. Caller should hold a (caller's choice of)
// guarantee of stability; most callers call this with a.mu held.
func (a *Atom) Stage() Stage { return a.stage }

// Age returns how long the atom has existed.
func (a *Atom) Age() time.Duration { return a.clock.Now().Sub(a.startTime) }

// CaptureCount returns Σ|lists| including flush-queued nodes, matching the
// invariant capture_count == len(all capture lists).
func (a *Atom) CaptureCount() int { return a.captureCount }

func (a *Atom) TxnHandleCount() int { return a.txnhCount }

// advanceStage moves the atom forward. Panics if asked to go backwards,
// enforcing the monotonicity invariant (spec.md §8).
func (a *Atom) advanceStage(to Stage) {
	if to < a.stage {
		panic("txn: atom stage moved backwards")
	}
	if to != a.stage {
		a.stage = to
		a.wakeAll()
	}
}

// addRef bumps the atom's reference count. The count starts at one, the
// "until-commit" reference taken at creation; commit drops that reference
// and removes the atom from the manager once the count is at or below
// zero, and fuse drops the absorbed atom's reference. Jnode captures and
// joined handles take no reference, and nothing currently calls addRef.
func (a *Atom) addRef() { a.refcount++ }

// sleepFwaitfor blocks the caller until the atom wakes its waiters (on a
// stage change); the caller must already hold a.mu, which is released
// while parked and re-acquired before returning.
func (a *Atom) sleepFwaitfor() {
	w := newWaiter()
	a.fwaitfor = append(a.fwaitfor, w)
	a.nrWaiters++
	a.mu.Unlock()
	<-w.ready
	a.mu.Lock()
}

// wakeOne centralizes the waiter-count decrement so that, unlike the
// original source (spec.md §9 Open Question on nr_waiters), commit and
// try-commit paths cannot double-decrement under retry: this is the single
// place nrWaiters goes down, called once per waiter as it is actually woken.
func (a *Atom) wakeOne(w *waiter) {
	w.wake()
	if a.nrWaiters > 0 {
		a.nrWaiters--
	}
}

// wakeAll wakes every thread parked on this atom's fwaitfor and fwaiting
// lists (spec.md §4.4 step 4).
func (a *Atom) wakeAll() {
	for _, w := range a.fwaitfor {
		a.wakeOne(w)
	}
	a.fwaitfor = nil
	for _, w := range a.fwaiting {
		w.wake()
	}
	a.fwaiting = nil
}

// listFor returns the membership set a jnode with the given flags belongs
// to, per the invariant in spec.md §4.1: DIRTY -> dirty_nodes[level],
// OVRWR (not dirty) -> ovrwr_nodes, WRITEBACK -> writeback_nodes, neither ->
// clean_nodes. FLUSH_QUEUED nodes are tracked separately and excluded from
// reordering but remain counted.
func (a *Atom) listFor(n *jnode.Node) map[*jnode.Node]struct{} {
	f := n.Flags()
	switch {
	case f.Has(jnode.FlagWriteback):
		return a.writeback
	case f.Has(jnode.FlagDirty):
		lvl := n.Level()
		m, ok := a.dirty[lvl]
		if !ok {
			m = make(map[*jnode.Node]struct{})
			a.dirty[lvl] = m
		}
		return m
	case f.Has(jnode.FlagOvrwr):
		return a.ovrwr
	default:
		return a.clean
	}
}

// placeJnode (re)inserts n into the list matching its current flags,
// removing it from whichever list it was previously tracked on. It is the
// atom's single choke point for the "exactly one list" invariant.
func (a *Atom) placeJnode(n *jnode.Node, prev map[*jnode.Node]struct{}) {
	if prev != nil {
		delete(prev, n)
	}
	a.listFor(n)[n] = struct{}{}
}

// CaptureJnode adds a never-before-captured jnode to this atom: binds its
// atom pointer, places it on the correct list, and bumps capture_count.
func (a *Atom) CaptureJnode(n *jnode.Node) {
	n.SetAtom(a)
	a.listFor(n)[n] = struct{}{}
	a.captureCount++
}

// Uncapture removes a jnode from the atom once it is no longer needed
// (after commit, once clean, or on abort). It decrements capture_count and
// leaves the atom's refcount untouched.
func (a *Atom) Uncapture(n *jnode.Node) {
	for _, m := range a.allLists() {
		delete(m, n)
	}
	n.SetAtom(nil)
	a.captureCount--
}

func (a *Atom) allLists() []map[*jnode.Node]struct{} {
	lists := []map[*jnode.Node]struct{}{a.clean, a.ovrwr, a.writeback}
	for _, m := range a.dirty {
		lists = append(lists, m)
	}
	return lists
}

// Requeue moves n to the list matching its current flags; callers invoke
// this after changing n's flags (MakeDirty/MakeClean/etc.) so atom
// membership stays consistent with jnode state (the invariant in spec.md
// §4.1).
func (a *Atom) Requeue(n *jnode.Node) {
	for _, m := range a.allLists() {
		if _, ok := m[n]; ok {
			a.placeJnode(n, m)
			return
		}
	}
	a.placeJnode(n, nil)
}

// DirtyCount returns the number of dirty jnodes across all levels that are
// not yet flush-queued, i.e. those flushing has still to drain.
func (a *Atom) DirtyCount() int {
	n := 0
	for _, m := range a.dirty {
		for j := range m {
			if !j.Flags().Has(jnode.FlagFlushQueued) {
				n++
			}
		}
	}
	return n
}

// DirtyAtLevel returns a snapshot slice of dirty jnodes at one level, for
// flush scanning.
func (a *Atom) DirtyAtLevel(level jnode.Level) []*jnode.Node {
	m := a.dirty[level]
	out := make([]*jnode.Node, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	return out
}

// OverwriteSet returns a snapshot of the OVRWR list, for the commit
// pipeline's wander phase.
func (a *Atom) OverwriteSet() []*jnode.Node {
	out := make([]*jnode.Node, 0, len(a.ovrwr))
	for n := range a.ovrwr {
		out = append(out, n)
	}
	return out
}

// RecordWandered records the (original, wandered) pair for a block this
// atom will write wandered-then-overwrite, populating the atom-scoped
// wandered map (spec.md §3).
func (a *Atom) RecordWandered(original, wandered block.Addr) {
	a.wanderedMap[original] = wandered
}

// WanderedMap returns a copy of the atom's wandered map.
func (a *Atom) WanderedMap() map[block.Addr]block.Addr {
	out := make(map[block.Addr]block.Addr, len(a.wanderedMap))
	for k, v := range a.wanderedMap {
		out[k] = v
	}
	return out
}

// RecordFreed adds blocks to this atom's delete set. They are only returned
// to the allocator once the atom's overwrite phase is durable (spec.md §3,
// §4.9 step 9).
func (a *Atom) RecordFreed(addrs ...block.Addr) {
	for _, addr := range addrs {
		a.deleteSet[addr] = struct{}{}
	}
}

func (a *Atom) DeleteSet() []block.Addr {
	out := make([]block.Addr, 0, len(a.deleteSet))
	for addr := range a.deleteSet {
		out = append(out, addr)
	}
	return out
}

func (a *Atom) SetForceCommit() { a.flags |= AtomForceCommit }
func (a *Atom) ForceCommit() bool { return a.flags&AtomForceCommit != 0 }

// ReserveFlush grows the atom's flush-reserved block budget by n. The carry
// pipeline calls this once per freshly created (not loaded) jnode it
// captures, so commit never finds itself short a block to write a node
// that didn't exist in any earlier checkpoint (spec.md §4.1/§5).
func (a *Atom) ReserveFlush(n int) {
	a.mu.Lock()
	a.flushReserved += n
	a.mu.Unlock()
}

// FlushReserved returns the atom's current flush-reserved block count.
func (a *Atom) FlushReserved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushReserved
}
