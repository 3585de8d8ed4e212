package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reiser4/reiser4fs/block"
)

func TestAllocateMarksBlockUsed(t *testing.T) {
	bm := NewBitmap(64)
	addr, err := bm.Allocate(block.Addr(0))
	require.NoError(t, err)
	assert.True(t, bm.bitSet(uint64(addr)))
}

func TestAllocateDoesNotReuseUntilFreed(t *testing.T) {
	bm := NewBitmap(4)
	seen := make(map[block.Addr]bool)
	for i := 0; i < 4; i++ {
		addr, err := bm.Allocate(block.Addr(0))
		require.NoError(t, err)
		assert.False(t, seen[addr], "address %d allocated twice", addr)
		seen[addr] = true
	}
	_, err := bm.Allocate(block.Addr(0))
	assert.Error(t, err, "expected out-of-space once all 4 blocks are allocated")
}

func TestFreeReleasesBlockForReuse(t *testing.T) {
	bm := NewBitmap(1)
	addr, err := bm.Allocate(block.Addr(0))
	require.NoError(t, err)

	require.NoError(t, bm.Free([]block.Addr{addr}))

	again, err := bm.Allocate(block.Addr(0))
	require.NoError(t, err)
	assert.Equal(t, addr, again)
}

func TestFreeBlocksCounter(t *testing.T) {
	bm := NewBitmap(10)
	assert.Equal(t, uint64(10), bm.FreeBlocks())

	addrs, err := bm.AllocateRange(block.Addr(0), 3)
	require.NoError(t, err)
	require.Len(t, addrs, 3)
	assert.Equal(t, uint64(7), bm.FreeBlocks())

	require.NoError(t, bm.Free(addrs))
	assert.Equal(t, uint64(10), bm.FreeBlocks())
}

func TestAllocateRangeOutOfSpaceLeavesNoPartialAllocation(t *testing.T) {
	bm := NewBitmap(2)
	_, err := bm.AllocateRange(block.Addr(0), 5)
	require.Error(t, err)
	assert.Equal(t, uint64(2), bm.FreeBlocks())
}

func TestBitmapBlockCoversRange(t *testing.T) {
	bb := NewBitmapBlock(1, block.Addr(100), 0)
	assert.True(t, bb.Covers(0))
	assert.True(t, bb.Covers(wordBits*wordsPerBlock-1))
	assert.False(t, bb.Covers(wordBits*wordsPerBlock))
}

func TestBlockMapForBit(t *testing.T) {
	bm := NewBlockMap()
	first := NewBitmapBlock(1, block.Addr(10), 0)
	second := NewBitmapBlock(1, block.Addr(11), wordsPerBlock)
	bm.Add(first)
	bm.Add(second)

	got, ok := bm.ForBit(5)
	require.True(t, ok)
	assert.Equal(t, first, got)

	got, ok = bm.ForBit(wordBits*wordsPerBlock + 1)
	require.True(t, ok)
	assert.Equal(t, second, got)
}
