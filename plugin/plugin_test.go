package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/tree"
)

func newZ() *tree.Znode {
	n := jnode.New(1, 0x8000000000000010, jnode.SubtypeFormatted, jnode.LevelLeaf)
	return tree.NewZnode(n)
}

func TestGenericNodeInsertLookupRoundTrip(t *testing.T) {
	z := newZ()
	np := NodePluginGeneric
	k := key.New(0, key.MinorStat, 0, 7, 0)
	require.NoError(t, np.Insert(z, 0, tree.Item{Key: k, Value: []byte("hello")}))

	c := np.LookupKey(z, k)
	assert.Equal(t, tree.AtUnit, c.Between)
	it, ok := np.ItemByCoord(c)
	require.True(t, ok)
	assert.Equal(t, "hello", string(it.Value))
}

func TestGenericNodeCheckDetectsDisorder(t *testing.T) {
	z := newZ()
	np := NodePluginGeneric
	k1 := key.New(0, key.MinorStat, 0, 5, 0)
	k2 := key.New(0, key.MinorStat, 0, 1, 0)
	require.NoError(t, np.Insert(z, 0, tree.Item{Key: k1}))
	require.NoError(t, np.Insert(z, 1, tree.Item{Key: k2}))
	assert.Error(t, np.Check(z))
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.RegisterNode(NodePluginGeneric)
	r.RegisterItem(Extent)

	np, ok := r.Node(IDStatData)
	require.True(t, ok)
	assert.Equal(t, IDStatData, np.ID())

	ip, ok := r.Item(IDExtent)
	require.True(t, ok)
	assert.Equal(t, 16, ip.EstimateInsert(make([]byte, 16))-24)
}

func TestExtentUnitsAndShiftBudget(t *testing.T) {
	it := tree.Item{Value: make([]byte, 48)} // 3 sixteen-byte extents
	assert.Equal(t, 3, Extent.NrUnits(it))
	assert.Equal(t, 2, Extent.CanShift(it, 32))
}
