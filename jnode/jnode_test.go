package jnode

import (
	"testing"

	"github.com/reiser4/reiser4fs/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAtom struct{ id uint64 }

func (a *fakeAtom) AtomID() uint64 { return a.id }

func TestMakeDirtyRequiresAtom(t *testing.T) {
	n := New(0, block.NewFake(), SubtypeFormatted, LevelLeaf)
	assert.Panics(t, func() { n.MakeDirty() })

	n.SetAtom(&fakeAtom{id: 1})
	assert.NotPanics(t, func() { n.MakeDirty() })
	assert.True(t, n.Flags().Has(FlagDirty))
}

func TestRelocOvrwrMutuallyExclusive(t *testing.T) {
	n := New(0, block.NewFake(), SubtypeFormatted, LevelLeaf)
	n.MakeReloc()
	assert.Panics(t, func() { n.MakeWander() })
}

func TestMakeCreatedRequiresAtom(t *testing.T) {
	n := New(0, block.NewFake(), SubtypeFormatted, LevelLeaf)
	assert.Panics(t, func() { n.MakeCreated() })

	n.SetAtom(&fakeAtom{id: 1})
	assert.NotPanics(t, func() { n.MakeCreated() })
	assert.True(t, n.Flags().Has(FlagCreated))
}

func TestMakeCleanClearsCommitFlags(t *testing.T) {
	n := New(0, block.NewFake(), SubtypeFormatted, LevelLeaf)
	n.SetAtom(&fakeAtom{id: 1})
	n.MakeDirty()
	n.MakeReloc()
	n.MarkWriteback()

	n.MakeClean()

	f := n.Flags()
	assert.False(t, f.Has(FlagDirty))
	assert.False(t, f.Has(FlagReloc))
	assert.False(t, f.Has(FlagOvrwr))
	assert.False(t, f.Has(FlagCreated))
	assert.False(t, f.Has(FlagWriteback))
}

func TestEvictable(t *testing.T) {
	n := New(0, block.NewFake(), SubtypeFormatted, LevelLeaf)
	require.True(t, n.Evictable())

	n.IncXCount()
	assert.False(t, n.Evictable())
	n.DecXCount()
	assert.True(t, n.Evictable())

	n.SetAtom(&fakeAtom{id: 7})
	assert.False(t, n.Evictable())
}

func TestFlagsString(t *testing.T) {
	n := New(0, block.NewFake(), SubtypeFormatted, LevelLeaf)
	assert.Equal(t, "NONE", n.Flags().String())
	n.SetAtom(&fakeAtom{id: 1})
	n.MakeDirty()
	assert.Equal(t, "DIRTY", n.Flags().String())
}
