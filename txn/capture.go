package txn

import (
	"github.com/reiser4/reiser4fs/jnode"
)

// LockMode is the lock mode requested on the jnode being captured.
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
)

// CaptureFlags modify TryCapture's behavior (spec.md §4.2).
type CaptureFlags uint32

const (
	FlagNonblocking CaptureFlags = 1 << iota
	FlagDontFuse
	FlagCanCOC
)

type captureMode int

const (
	captureWrite captureMode = iota
	captureNone
)

// computeCaptureMode implements spec.md §4.2's "Computed capture mode"
// table.
func computeCaptureMode(n *jnode.Node, lockMode LockMode) captureMode {
	if lockMode == LockWrite {
		return captureWrite
	}
	// Read lock on an already-captured jnode piggybacks as a write capture
	// to avoid inconsistency (spec.md §4.2).
	if n.Atom() != nil {
		return captureWrite
	}
	// Read lock on a non-captured, non-leaf jnode: no capture needed.
	if n.Level() != jnode.LevelLeaf {
		return captureNone
	}
	return captureWrite
}

// TryCapture binds h to n's atom per the decision table in spec.md §4.2.
// The caller must hold n.Mu on entry (n is "spin-locked" per the spec) and
// must release it before TryCapture returns with a retry-kind error, since
// the caller's outer loop will re-enter from scratch.
//
// Returns one of: nil (success), *Error{Kind: KindRetry} (E_REPEAT, caller
// retries), *Error{Kind: KindBlocked} (E_NO_NEIGHBOR, only with
// FlagDontFuse), *Error{Kind: KindDeadlock}.
func (h *Handle) TryCapture(n *jnode.Node, lockMode LockMode, flags CaptureFlags) error {
	mode := computeCaptureMode(n, lockMode)
	if mode == captureNone {
		n.MarkMissedInCapture()
		return nil
	}

	h.mu.Lock()
	hAtom := h.atom
	h.mu.Unlock()
	jAtom, _ := n.Atom().(*Atom)

	switch {
	case jAtom != nil && hAtom != nil && jAtom == hAtom:
		// Already captured by the caller's own atom: no-op (spec.md §8
		// round-trip law).
		return nil

	case jAtom == nil && hAtom == nil:
		return h.createAndJoin(n)

	case jAtom == nil && hAtom != nil:
		return h.assignJnodeToAtom(n, hAtom)

	case jAtom != nil && hAtom == nil:
		return h.joinHandleToAtom(n, jAtom, mode, flags)

	default: // both non-nil and different
		if flags&FlagDontFuse != 0 {
			return &Error{Kind: KindBlocked, Op: "capture", Err: errNoNeighborf(jAtom.id, hAtom.id)}
		}
		return h.fuseForCapture(n, jAtom, hAtom, flags)
	}
}

// createAndJoin creates a fresh atom in CAPTURE_FUSE stage and assigns both
// n and h to it (spec.md §4.2 row "null / null").
func (h *Handle) createAndJoin(n *jnode.Node) error {
	h.mgr.mu.Lock()
	a := h.mgr.newAtomLocked()
	h.mgr.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.CaptureJnode(n)

	h.mu.Lock()
	h.atom = a
	h.mu.Unlock()
	a.txnhList[h] = struct{}{}
	a.txnhCount++
	return nil
}

// assignJnodeToAtom assigns an uncaptured jnode to the handle's existing
// atom (spec.md §4.2 row "null / A"): requires a trylock on A; on
// contention, the caller drops locks and retries.
func (h *Handle) assignJnodeToAtom(n *jnode.Node, a *Atom) error {
	if !a.mu.TryLock() {
		return repeatf("capture", "contention locking atom %d", a.AtomID())
	}
	defer a.mu.Unlock()

	a.CaptureJnode(n)
	h.mu.Lock()
	if h.atom == nil {
		h.atom = a
		a.txnhList[h] = struct{}{}
		a.txnhCount++
	}
	h.mu.Unlock()
	return nil
}

// joinHandleToAtom assigns h to n's atom B (spec.md §4.2 row "B / null").
func (h *Handle) joinHandleToAtom(n *jnode.Node, b *Atom, mode captureMode, flags CaptureFlags) error {
	if !b.mu.TryLock() {
		return repeatf("capture", "contention locking atom %d", b.AtomID())
	}
	defer b.mu.Unlock()

	// Read-atomic traffic on a committing atom doesn't need its own
	// capture once the atom has reached CAPTURE_WAIT.
	if b.stage >= StageCaptureWait && mode != captureWrite {
		return nil
	}

	if b.stage > StageCaptureWait && mode == captureWrite {
		if flags&FlagCanCOC != 0 {
			if _, err := PerformCOC(n, b, h.mgr.leaser, h.mgr.pageSize); err == nil {
				return repeatf("capture", "copy-on-capture performed; retry capture of clean node")
			}
		}
		if flags&FlagNonblocking != 0 {
			return repeatf("capture", "atom %d busy committing", b.id)
		}
		b.sleepFwaitfor()
		return repeatf("capture", "woke after waiting on committing atom %d", b.id)
	}

	h.mu.Lock()
	h.atom = b
	h.mu.Unlock()
	b.txnhList[h] = struct{}{}
	b.txnhCount++
	return nil
}
