package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reiser4/reiser4fs/clock"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/txn"
)

// noopDriver satisfies txn.CommitDriver with no-ops: the daemon only needs
// to observe that commit ran to completion (StageDone), not that it wrote
// anything real -- flush/wander have their own package tests for that.
type noopDriver struct{}

func (noopDriver) Flush(a *txn.Atom) error     { return nil }
func (noopDriver) WriteLog(a *txn.Atom) error  { return nil }
func (noopDriver) Overwrite(a *txn.Atom) error { return nil }

// TestAtomAgeBasedCommit exercises spec.md §8 scenario 6: an atom holding a
// single dirty leaf ages past atom_max_age on a clock.SimulatedClock, and
// the background daemon's sweep forces it through the commit pipeline
// without any foreground handle asking for it.
func TestAtomAgeBasedCommit(t *testing.T) {
	simClock := clock.NewSimulatedClock(time.Unix(0, 0))
	mgr := txn.NewManager(simClock, txn.Params{AtomMaxAge: 10 * time.Second}, noopDriver{}, nil, 0)

	h := mgr.Begin(txn.ModeWriteFusing)
	n := jnode.New(1, 1, jnode.SubtypeFormatted, jnode.LevelLeaf)
	require.NoError(t, h.TryCapture(n, txn.LockWrite, 0))
	a := h.Atom()
	require.NotNil(t, a)
	n.MakeDirty()
	a.Requeue(n)

	require.False(t, mgr.AtomShouldCommit(a), "freshly created atom is not yet old enough")

	d := New(mgr, time.Hour, 4) // Interval is irrelevant: the test drives sweeps via Nudge.

	var mu sync.Mutex
	var forced []uint64
	done := make(chan struct{}, 1)
	d.OnForce(func(atomID uint64, err error) {
		assert.NoError(t, err)
		mu.Lock()
		forced = append(forced, atomID)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	defer func() {
		cancel()
		d.Stop()
	}()

	// Age the atom past atom_max_age without sleeping real wall time.
	simClock.Advance(11 * time.Second)
	require.True(t, mgr.AtomShouldCommit(a))

	// A long-running reader opens a fresh handle only once the old atom has
	// aged out, mirroring "scan continues in a new atom": this atom's age
	// starts from the post-Advance clock, so it must not itself qualify for
	// forcing yet.
	scanHandle := mgr.Begin(txn.ModeReadFusing)
	scanNode := jnode.New(1, 2, jnode.SubtypeFormatted, jnode.LevelLeaf)
	require.NoError(t, scanHandle.TryCapture(scanNode, txn.LockWrite, 0))
	require.False(t, mgr.AtomShouldCommit(scanHandle.Atom()))

	d.Nudge()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not force the aged atom in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, forced, 1)
	assert.Equal(t, a.AtomID(), forced[0])
	assert.Equal(t, txn.StageDone, a.Stage())

	// The still-open scan handle's atom is untouched: it has not aged past
	// the threshold and was never forced.
	assert.NotEqual(t, txn.StageDone, scanHandle.Atom().Stage())
}
