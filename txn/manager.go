// Package txn implements the atom/transaction-handle/capture protocol: the
// core of the filesystem's crash-consistency story (spec.md §1 CORE, §4.2
// through §4.5, §4.9).
package txn

import (
	"sync"
	"time"

	"github.com/reiser4/reiser4fs/clock"
	"github.com/reiser4/reiser4fs/lease"
)

// Params are the process-wide tunables from spec.md §6 Configurable
// Parameters, bound by the cfg package from mount options.
type Params struct {
	AtomMaxSize     int // commit when atom exceeds this many captured pointers
	AtomMaxAge      time.Duration
	AtomMinSize     int
	AtomMaxFlushers int
}

// CommitDriver is implemented by the flush+wander packages and injected
// into the Manager so txn never imports them directly (they import txn
// instead, for Atom). It drives steps 2-10 of the commit pipeline
// (spec.md §4.9); txn itself drives steps 1 and 11 plus the global commit
// mutex.
type CommitDriver interface {
	// Flush drains the atom's dirty nodes via scan/relocate-decision/
	// squalloc (spec.md §4.9 step 2). The flush package's implementation
	// scans leaf and twig levels only and does not update any inode's
	// stat-data.
	Flush(a *Atom) error
	// WriteLog writes the wandered copies (whose blocks squalloc already
	// allocated), log records and tx_header, then publishes journal_header
	// (spec.md §4.9 steps 5-7). Must be durable before returning.
	WriteLog(a *Atom) error
	// Overwrite performs the overwrite phase, applies the delete set, and
	// writes journal_footer (spec.md §4.9 steps 8-10).
	Overwrite(a *Atom) error
}

// Manager is the transaction manager: it creates atoms lazily, serializes
// PRE_COMMIT across atoms via a global commit mutex, and holds the tunables
// that decide when an atom should commit.
type Manager struct {
	mu         sync.Mutex
	commitMu   sync.Mutex // spec.md §5 "Global commit mutex"
	atoms      map[uint64]*Atom
	nextAtomID uint64
	clk        clock.Clock
	params     Params
	driver     CommitDriver
	leaser     *lease.Leaser
	pageSize   int
}

// NewManager creates a transaction manager. driver may be nil for tests
// that only exercise capture/fusion, not commit. leaser may be nil, in
// which case an unbounded leaser is created for copy-on-capture's shadow
// pages.
func NewManager(clk clock.Clock, params Params, driver CommitDriver, leaser *lease.Leaser, pageSize int) *Manager {
	if leaser == nil {
		leaser = lease.NewLeaser(0)
	}
	if pageSize <= 0 {
		pageSize = 4096
	}
	return &Manager{
		atoms:    make(map[uint64]*Atom),
		clk:      clk,
		params:   params,
		driver:   driver,
		leaser:   leaser,
		pageSize: pageSize,
	}
}

// Begin opens a new transaction handle, not yet joined to any atom.
func (m *Manager) Begin(mode Mode) *Handle {
	return &Handle{mgr: m, mode: mode, open: true}
}

func (m *Manager) newAtomLocked() *Atom {
	m.nextAtomID++
	a := newAtom(m.nextAtomID, clockAdapter{m.clk})
	m.atoms[a.id] = a
	return a
}

type clockAdapter struct{ c clock.Clock }

func (c clockAdapter) Now() time.Time { return c.c.Now() }

// removeAtom drops an atom from the manager's table once it is DONE and its
// refcount has hit zero; called from commit.
func (m *Manager) removeAtom(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.atoms, id)
}

// AtomShouldCommit reports whether a is old enough, big enough, or
// force-flagged to warrant entering the commit pipeline (spec.md §4.9
// entry condition, §5 aging/"dotard").
func (m *Manager) AtomShouldCommit(a *Atom) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ForceCommit() {
		return true
	}
	if m.params.AtomMaxSize > 0 && a.captureCount > m.params.AtomMaxSize {
		return true
	}
	if m.params.AtomMaxAge > 0 && a.Age() > m.params.AtomMaxAge {
		return true
	}
	return false
}

// Atoms returns a snapshot of all live atoms, for the background daemon's
// age/size scan (spec.md §5).
func (m *Manager) Atoms() []*Atom {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Atom, 0, len(m.atoms))
	for _, a := range m.atoms {
		out = append(out, a)
	}
	return out
}
