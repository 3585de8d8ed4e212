// Package daemon runs the background age/size-based commit-forcing loop
// ktxnmgrd/entd play in the original implementation (spec.md §2.11, §5):
// periodically wake up, find atoms that have grown or aged past their
// thresholds, and force them through the commit pipeline without waiting
// for a foreground writer to ask. Grounded on original_source/entd.c's
// "ent thread" loop -- wake on a timer or a nudge, drain whatever atoms
// are ready, go back to sleep -- reworked from a kthread plus waitqueue
// into a goroutine plus channels, and from entd's per-page writeback
// queue into Manager.Atoms()/AtomShouldCommit/Force.
package daemon

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/reiser4/reiser4fs/txn"
)

// Manager is the subset of *txn.Manager the daemon needs, narrowed so
// tests can fake it without a whole Store.
type Manager interface {
	Atoms() []*txn.Atom
	AtomShouldCommit(a *txn.Atom) bool
	Force(a *txn.Atom) error
}

// Daemon periodically scans Mgr's live atoms and forces the ones
// AtomShouldCommit flags (size over AtomMaxSize, or age over AtomMaxAge),
// the same two conditions spec.md §2.11 lists for ktxnmgrd forcing an
// atom with no foreground handle open on it.
type Daemon struct {
	Mgr      Manager
	Interval time.Duration

	sem     *semaphore.Weighted
	nudge   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	onForce func(atomID uint64, err error)
}

// New builds a Daemon that wakes every interval and allows at most
// maxFlushers concurrent Force calls in flight (spec.md §6's
// atom_max_flushers, the same cap AtomConfig.MaxFlushers feeds txn.Params).
func New(mgr Manager, interval time.Duration, maxFlushers int) *Daemon {
	if maxFlushers < 1 {
		maxFlushers = 1
	}
	return &Daemon{
		Mgr:      mgr,
		Interval: interval,
		sem:      semaphore.NewWeighted(int64(maxFlushers)),
		nudge:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnForce registers a callback invoked after each Force attempt, for
// logging or metrics wiring (cmd/mount.go logs each outcome here).
// Not safe to call once Run has started.
func (d *Daemon) OnForce(fn func(atomID uint64, err error)) {
	d.onForce = fn
}

// Nudge wakes the daemon immediately instead of waiting for the next
// timer tick, mirroring entd's wait queue being woken by a foreground
// thread that wants its page written back now.
func (d *Daemon) Nudge() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Run drives the wake/scan/force loop until ctx is done or Stop is
// called. It blocks, so callers run it in its own goroutine.
func (d *Daemon) Run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.sweep(ctx)
		case <-d.nudge:
			d.sweep(ctx)
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (d *Daemon) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Daemon) sweep(ctx context.Context) {
	for _, a := range d.Mgr.Atoms() {
		if !d.Mgr.AtomShouldCommit(a) {
			continue
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(a *txn.Atom) {
			defer d.sem.Release(1)
			err := d.Mgr.Force(a)
			if d.onForce != nil {
				d.onForce(a.AtomID(), err)
			}
		}(a)
	}
}
