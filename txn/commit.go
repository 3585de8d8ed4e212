package txn

import "fmt"

// Close closes a transaction handle: if it is the last active handle on its
// atom and the atom warrants committing, it drives the commit pipeline
// (spec.md §4.9); otherwise it simply releases the handle's reference.
func (h *Handle) Close() error {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return nil
	}
	h.open = false
	a := h.atom
	h.atom = nil
	waitCommit := h.flags&FlagWaitCommit != 0
	dontCommit := h.flags&FlagDontCommit != 0
	h.mu.Unlock()

	if a == nil {
		return nil
	}

	a.mu.Lock()
	delete(a.txnhList, h)
	a.txnhCount--
	last := a.txnhCount == 0
	a.mu.Unlock()

	if last && !dontCommit && h.mgr.AtomShouldCommit(a) {
		if err := h.mgr.commit(a); err != nil {
			return err
		}
	} else if waitCommit {
		h.mgr.waitDone(a)
	}
	return nil
}

// Force marks a as requiring commit regardless of age/size thresholds, used
// by the background daemon (spec.md §5 ktxnmgrd) and by vfs's
// Store.commitNow and FileSystem.FlushFile to push an atom through commit.
func (m *Manager) Force(a *Atom) error {
	a.mu.Lock()
	a.SetForceCommit()
	a.mu.Unlock()
	return m.commit(a)
}

// commit drives steps 1-11 of spec.md §4.9 for atom a.
func (m *Manager) commit(a *Atom) error {
	a.mu.Lock()
	if a.stage >= StageCaptureWait {
		// Another thread is already driving (or has driven) commit.
		a.mu.Unlock()
		return nil
	}
	a.advanceStage(StageCaptureWait) // 1: block new handles from joining
	a.mu.Unlock()

	if m.driver == nil {
		return fmt.Errorf("txn: commit requested but no CommitDriver configured")
	}

	// 2-4: drain dirty nodes via flush/squalloc, re-dirtying stat-data as
	// needed, until quiescent; wait for in-flight writeback.
	if err := m.driver.Flush(a); err != nil {
		a.mu.Lock()
		a.commitErr = err
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	a.advanceStage(StagePreCommit)
	a.mu.Unlock()

	// 5-7: under the global commit mutex, write tx_header, log records,
	// wandered copies, then publish journal_header.
	m.commitMu.Lock()
	err := m.driver.WriteLog(a)
	if err == nil {
		// 8-10: overwrite phase, delete-set application, journal_footer.
		err = m.driver.Overwrite(a)
	}
	m.commitMu.Unlock()

	a.mu.Lock()
	if err != nil {
		a.commitErr = err
		a.mu.Unlock()
		return err
	}
	a.advanceStage(StageDone) // 11
	a.refcount--              // drop the until-commit reference
	refcount := a.refcount
	a.mu.Unlock()

	if refcount <= 0 {
		m.removeAtom(a.id)
	}
	return nil
}

// waitDone blocks the caller until a reaches DONE.
func (m *Manager) waitDone(a *Atom) {
	a.mu.Lock()
	for a.stage < StageDone && a.commitErr == nil {
		a.sleepFwaitfor()
	}
	a.mu.Unlock()
}
