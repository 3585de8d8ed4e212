package txn

import (
	"github.com/reiser4/reiser4fs/jnode"
)

// fuseForCapture handles spec.md §4.2's last decision-table row: J captured
// by B, H joined to A, A != B.
func (h *Handle) fuseForCapture(n *jnode.Node, b, a *Atom, flags CaptureFlags) error {
	// Lock both atoms in a globally consistent order (by id) via
	// trylock-and-retry, per spec.md §5's canonical lock order note on
	// fusing two atoms.
	first, second := a, b
	if b.id < a.id {
		first, second = b, a
	}
	if !first.mu.TryLock() {
		return repeatf("capture", "contention locking atom %d", first.id)
	}
	if !second.mu.TryLock() {
		first.mu.Unlock()
		return repeatf("capture", "contention locking atom %d", second.id)
	}
	defer first.mu.Unlock()
	defer second.mu.Unlock()

	if b.stage == StageCaptureWait && a.stage != StageCaptureWait {
		if flags&FlagNonblocking != 0 {
			return repeatf("capture", "atom %d in CAPTURE_WAIT", b.id)
		}
		// Block H on B's fwaitfor list until B progresses, per spec.md
		// §4.2. We cannot sleep here with two atom locks held (spec.md
		// §5 forbids sleeping with short locks held), so register the
		// waiter and signal the caller to retry, which will re-enter
		// and find B past CAPTURE_WAIT.
		w := newWaiter()
		b.fwaitfor = append(b.fwaitfor, w)
		b.nrWaiters++
		return repeatf("capture", "queued behind atom %d's CAPTURE_WAIT", b.id)
	}

	fuse(a, b)
	h.mu.Lock()
	h.atom = survivorOf(a, b)
	h.mu.Unlock()
	return nil
}

// survivorOf returns whichever of a, b is not INVALID after fuse.
func survivorOf(a, b *Atom) *Atom {
	if a.stage == StageInvalid {
		return b
	}
	return a
}

// fuse merges the smaller atom into the larger one, per spec.md §4.4.
// "Smaller" is measured by txnh_count + capture_count. REQUIRES: caller
// holds both a.mu and b.mu.
func fuse(a, b *Atom) {
	small, large := a, b
	if weight(b) < weight(a) {
		small, large = b, a
	}

	// 1. Splice small's capture lists into large, rewriting atom pointers.
	for _, m := range small.allLists() {
		for n := range m {
			n.SetAtom(large)
			large.placeJnode(n, nil)
		}
	}
	large.captureCount += small.captureCount

	// Splice txn handle list.
	for h := range small.txnhList {
		h.mu.Lock()
		h.atom = large
		h.mu.Unlock()
		large.txnhList[h] = struct{}{}
	}
	large.txnhCount += small.txnhCount

	// 2. Merge queues/counters/delete set/wandered map/reserved counters.
	large.nrQueued += small.nrQueued
	large.nrFlushers += small.nrFlushers
	large.nrRunningQueues += small.nrRunningQueues
	large.flushReserved += small.flushReserved
	for addr := range small.deleteSet {
		large.deleteSet[addr] = struct{}{}
	}
	for k, v := range small.wanderedMap {
		large.wanderedMap[k] = v
	}
	if small.flags&AtomForceCommit != 0 {
		large.flags |= AtomForceCommit
	}

	// 3. Advance large's stage to small's if small is further along.
	if small.stage > large.stage {
		large.advanceStage(small.stage)
	}

	// 4. Wake small's waiters; they will find their handle's atom now
	// points at large on retry.
	for _, w := range small.fwaitfor {
		large.wakeOne(w)
	}
	small.fwaitfor = nil
	for _, w := range small.fwaiting {
		w.wake()
	}
	small.fwaiting = nil

	// 5. Invalidate small and drop its until-commit reference; the
	// manager reaps it once refcount hits zero.
	small.stage = StageInvalid
	small.refcount--
}

func weight(a *Atom) int { return a.txnhCount + a.captureCount }

// MissedInCaptureRecover implements spec.md §4.2's missed-in-capture
// recovery: when a jnode flagged MISSED_IN_CAPTURE is captured with write
// intent, the capturer fuses every current lock owner's atom with its own,
// closing the deadlock window where a flush-waiter's atom could otherwise
// starve. lockOwners is supplied by the lock manager (outside this
// package's scope); each owner atom is fused with h's atom in turn (fuse
// keeps the larger of the two).
func (h *Handle) MissedInCaptureRecover(n *jnode.Node, lockOwnerAtoms []*Atom) error {
	n.ClearMissedInCapture()
	for _, owner := range lockOwnerAtoms {
		h.mu.Lock()
		mine := h.atom
		h.mu.Unlock()
		if mine == nil || owner == nil || owner == mine {
			continue
		}
		if err := h.fuseForCapture(n, owner, mine, 0); err != nil {
			return err
		}
	}
	return nil
}
