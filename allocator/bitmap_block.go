package allocator

import (
	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/jnode"
)

// wordsPerBlock is how many bitmap words (512 bytes worth of bits) live in
// one on-disk bitmap block; arbitrary since the on-disk bitmap layout is
// explicitly out of scope, but fixed so BitmapBlock.Covers is well-defined.
const wordsPerBlock = 64

// BitmapBlock pairs one on-disk bitmap block (a captured jnode.Node with
// Subtype() == SubtypeBitmap) with the in-memory Bitmap segment it backs,
// so bitmap mutations participate in the ordinary dirty/capture/flush
// pipeline instead of bypassing it (spec.md §5: "bitmaps are themselves
// captured jnodes flushed through the normal pipeline").
type BitmapBlock struct {
	*jnode.Node
	wordBase uint64
}

// NewBitmapBlock wraps addr as the wordsPerBlock-wide slice of the bitmap
// starting at word index wordBase.
func NewBitmapBlock(subvolume uint32, addr block.Addr, wordBase uint64) *BitmapBlock {
	return &BitmapBlock{
		Node:     jnode.New(subvolume, addr, jnode.SubtypeBitmap, jnode.LevelUnformatted),
		wordBase: wordBase,
	}
}

// Covers reports whether bit falls within this block's word range. Callers
// use it to find which BitmapBlock(s) to capture dirty after an allocation
// or free touches a given bit.
func (bb *BitmapBlock) Covers(bit uint64) bool {
	word := bit / wordBits
	return word >= bb.wordBase && word < bb.wordBase+wordsPerBlock
}

// BlockForBit returns the word-base index of the BitmapBlock that would
// cover bit, for looking it up in a BlockMap.
func BlockForBit(bit uint64) uint64 {
	return (bit / wordBits / wordsPerBlock) * wordsPerBlock
}

// BlockMap indexes a volume's BitmapBlocks by word base, letting
// allocation/free find which on-disk blocks to capture dirty.
type BlockMap struct {
	byWordBase map[uint64]*BitmapBlock
}

func NewBlockMap() *BlockMap {
	return &BlockMap{byWordBase: make(map[uint64]*BitmapBlock)}
}

func (m *BlockMap) Add(bb *BitmapBlock) { m.byWordBase[bb.wordBase] = bb }

func (m *BlockMap) ForBit(bit uint64) (*BitmapBlock, bool) {
	bb, ok := m.byWordBase[BlockForBit(bit)]
	return bb, ok
}
