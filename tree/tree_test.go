package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
)

func leafJnode(blk uint64) *jnode.Node {
	return jnode.New(1, 0x8000000000000000|blk, jnode.SubtypeFormatted, jnode.LevelLeaf)
}

func TestSiblingInvariantAfterLink(t *testing.T) {
	left := NewZnode(leafJnode(1))
	right := NewZnode(leafJnode(2))
	boundary := key.New(0, key.MinorStat, 0, 5, 0)
	left.SetDelimitingKeys(key.Min, boundary)
	right.SetDelimitingKeys(boundary, key.Max)

	LinkSiblings(left, right)

	assert.Equal(t, left.RDKey(), right.LDKey())
	assert.True(t, left.Connected())
	assert.True(t, right.Connected())
	assert.Same(t, right, left.Right())
	assert.Same(t, left, right.Left())
}

func TestLookupInNodeExactAndGap(t *testing.T) {
	z := NewZnode(leafJnode(1))
	k1 := key.New(0, key.MinorStat, 0, 1, 0)
	k2 := key.New(0, key.MinorStat, 0, 2, 0)
	k3 := key.New(0, key.MinorStat, 0, 3, 0)
	z.Insert(0, Item{Key: k1, Value: []byte("a")})
	z.Insert(1, Item{Key: k2, Value: []byte("b")})
	z.Insert(2, Item{Key: k3, Value: []byte("c")})

	c := lookupInNode(z, k2)
	assert.Equal(t, AtUnit, c.Between)
	assert.Equal(t, 1, c.ItemPos)

	gapKey := key.New(0, key.MinorStat, 0, 2, 5)
	c2 := lookupInNode(z, gapKey)
	assert.NotEqual(t, AtUnit, c2.Between)
}

func TestCoordByKeyDescendsToLeaf(t *testing.T) {
	tr, root := NewEmptyRoot(1, 0x8000000000000001)
	k := key.New(0, key.MinorStat, 0, 42, 0)
	root.Insert(0, Item{Key: k, Value: []byte("payload")})

	c, res := tr.CoordByKey(k, FindExact, jnode.LevelLeaf)
	require.Equal(t, Found, res)
	assert.Equal(t, "payload", string(c.Node.Items()[c.ItemPos].Value))
}

func TestCoordByKeyMissing(t *testing.T) {
	tr, _ := NewEmptyRoot(1, 0x8000000000000002)
	_, res := tr.CoordByKey(key.New(0, key.MinorStat, 0, 99, 0), FindExact, jnode.LevelLeaf)
	assert.Equal(t, NotFound, res)
}

func TestShiftLeftPreservesBoundary(t *testing.T) {
	left := NewZnode(leafJnode(3))
	right := NewZnode(leafJnode(4))
	k1 := key.New(0, key.MinorStat, 0, 1, 0)
	k2 := key.New(0, key.MinorStat, 0, 2, 0)
	right.Insert(0, Item{Key: k1, Value: []byte("x")})
	right.Insert(1, Item{Key: k2, Value: []byte("y")})
	left.SetDelimitingKeys(key.Min, k1)
	right.SetDelimitingKeys(k1, key.Max)

	ShiftLeft(right, left, 1)

	assert.Equal(t, 1, left.NrItems())
	assert.Equal(t, 1, right.NrItems())
	assert.Equal(t, left.RDKey(), right.LDKey())
}

func TestCbkCacheEviction(t *testing.T) {
	c := newCBKCache(2)
	z := NewZnode(leafJnode(5))
	k1 := key.New(0, key.MinorStat, 0, 1, 0)
	k2 := key.New(0, key.MinorStat, 0, 2, 0)
	k3 := key.New(0, key.MinorStat, 0, 3, 0)
	c.insert(k1, Coord{Node: z})
	c.insert(k2, Coord{Node: z})
	c.insert(k3, Coord{Node: z}) // evicts k1 (least recently used)

	_, ok := c.lookup(k1)
	assert.False(t, ok)
	_, ok = c.lookup(k3)
	assert.True(t, ok)
}
