package flush

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/clock"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/tree"
	"github.com/reiser4/reiser4fs/txn"
)

type fakeAllocator struct{ next uint64 }

func (a *fakeAllocator) Allocate(hint block.Addr) (block.Addr, error) {
	a.next++
	return block.Addr(a.next), nil
}

func newTestAtom(t *testing.T) (*txn.Manager, *txn.Handle, *txn.Atom) {
	mgr := txn.NewManager(clock.RealClock{}, txn.Params{}, nil, nil, 0)
	h := mgr.Begin(txn.ModeWriteFusing)
	z := tree.NewZnode(jnode.New(1, 10, jnode.SubtypeFormatted, jnode.LevelLeaf))
	require.NoError(t, h.TryCapture(z.Node, txn.LockWrite, 0))
	a := h.Atom()
	require.NotNil(t, a)
	z.MakeDirty()
	a.Requeue(z.Node)
	return mgr, h, a
}

func TestFlushDrainsDirtySet(t *testing.T) {
	_, _, a := newTestAtom(t)
	f := NewFlusher(Params{ScanMaxNodes: 8, RelocateThreshold: 0}, &fakeAllocator{})

	require.NoError(t, f.Flush(a))
	assert.Equal(t, 0, a.DirtyCount())
}

func TestScanRespectsMaxNodes(t *testing.T) {
	left := tree.NewZnode(jnode.New(1, 1, jnode.SubtypeFormatted, jnode.LevelLeaf))
	mid := tree.NewZnode(jnode.New(1, 2, jnode.SubtypeFormatted, jnode.LevelLeaf))
	right := tree.NewZnode(jnode.New(1, 3, jnode.SubtypeFormatted, jnode.LevelLeaf))
	tree.LinkSiblings(left, mid)
	tree.LinkSiblings(mid, right)

	mgr := txn.NewManager(clock.RealClock{}, txn.Params{}, nil, nil, 0)
	h := mgr.Begin(txn.ModeWriteFusing)
	require.NoError(t, h.TryCapture(left.Node, txn.LockWrite, 0))
	a := h.Atom()
	for _, z := range []*tree.Znode{mid, right} {
		require.NoError(t, h.TryCapture(z.Node, txn.LockWrite, 0))
	}
	for _, z := range []*tree.Znode{left, mid, right} {
		z.MakeDirty()
		a.Requeue(z.Node)
	}

	f := NewFlusher(Params{ScanMaxNodes: 1}, &fakeAllocator{})
	slum, err := f.Scan(a, left.Node)
	require.NoError(t, err)
	assert.Len(t, slum, 2)
}
