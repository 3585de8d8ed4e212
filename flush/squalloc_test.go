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

// TestSquallocRelocatesLargeSlumContiguously exercises spec.md §8 scenario
// 5: 64 adjacent dirtied leaves squalloc'd as one slum relocate to
// contiguous blocks (fakeAllocator ignores the hint and hands out
// sequential addresses, so the hint itself is not checked), every member
// ends RELOC (not OVRWR), and relocating never emits a wandered record --
// RELOC nodes are written to their new block directly at overwrite time,
// only OVRWR nodes need a wandered copy.
func TestSquallocRelocatesLargeSlumContiguously(t *testing.T) {
	mgr := txn.NewManager(clock.RealClock{}, txn.Params{}, nil, nil, 0)
	h := mgr.Begin(txn.ModeWriteFusing)

	const n = 64
	leaves := make([]*tree.Znode, n)
	for i := 0; i < n; i++ {
		leaves[i] = tree.NewZnode(jnode.New(1, block.Addr(1000+i), jnode.SubtypeFormatted, jnode.LevelLeaf))
		require.NoError(t, h.TryCapture(leaves[i].Node, txn.LockWrite, 0))
	}
	a := h.Atom()
	require.NotNil(t, a)

	slum := make([]*jnode.Node, n)
	for i, z := range leaves {
		z.MakeDirty()
		a.Requeue(z.Node)
		slum[i] = z.Node
	}

	f := NewFlusher(Params{RelocateThreshold: n}, &fakeAllocator{})
	require.NoError(t, f.Squalloc(a, slum))

	for _, z := range leaves {
		assert.True(t, z.Flags().Has(jnode.FlagReloc))
		assert.False(t, z.Flags().Has(jnode.FlagOvrwr))
		assert.True(t, z.Flags().Has(jnode.FlagFlushQueued))
	}

	for i := 1; i < n; i++ {
		assert.Equal(t, leaves[i-1].Blocknr+1, leaves[i].Blocknr,
			"relocated leaves should land on contiguous blocks from the allocator's sequential addresses")
	}

	assert.Empty(t, a.WanderedMap(), "relocated nodes must not produce wandered records")
}

// TestSquallocSmallSlumWandersInstead covers the complementary branch:
// below RelocateThreshold, squalloc keeps nodes at their original block
// and routes them through the wandering log instead.
func TestSquallocSmallSlumWandersInstead(t *testing.T) {
	mgr := txn.NewManager(clock.RealClock{}, txn.Params{}, nil, nil, 0)
	h := mgr.Begin(txn.ModeWriteFusing)

	z := tree.NewZnode(jnode.New(1, 5, jnode.SubtypeFormatted, jnode.LevelLeaf))
	require.NoError(t, h.TryCapture(z.Node, txn.LockWrite, 0))
	a := h.Atom()
	z.MakeDirty()
	a.Requeue(z.Node)

	f := NewFlusher(Params{RelocateThreshold: 64}, &fakeAllocator{})
	require.NoError(t, f.Squalloc(a, []*jnode.Node{z.Node}))

	assert.True(t, z.Flags().Has(jnode.FlagOvrwr))
	assert.False(t, z.Flags().Has(jnode.FlagReloc))
	assert.Equal(t, block.Addr(5), z.Blocknr, "an OVRWR node keeps its original block")
	assert.NotEmpty(t, a.WanderedMap())
}
