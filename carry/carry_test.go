package carry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reiser4/reiser4fs/block"
	"github.com/reiser4/reiser4fs/jnode"
	"github.com/reiser4/reiser4fs/key"
	"github.com/reiser4/reiser4fs/plugin"
	"github.com/reiser4/reiser4fs/tree"
)

func freshTree() (*tree.Tree, *tree.Znode) {
	return tree.NewEmptyRoot(1, block.NewFake())
}

func registry() *plugin.Registry {
	r := plugin.NewRegistry()
	r.RegisterNode(plugin.NodePluginGeneric)
	return r
}

func insertKey(t *testing.T, tr *tree.Tree, reg *plugin.Registry, pool *Pool, target *tree.Znode, n int) {
	k := key.New(0, key.MinorStat, 0, uint64(n), 0)
	lvl := NewLevel(jnode.LevelLeaf)
	lvl.Post(&Op{
		Kind:   OpInsert,
		Target: CarryNode{Kind: RefDirect, Base: target},
		Key:    k,
		Item:   tree.Item{Key: k, Value: []byte(fmt.Sprintf("v%d", n))},
	})
	require.NoError(t, Carry(tr, reg, pool, lvl))
}

func TestCarryInsertSingleNoSplit(t *testing.T) {
	tr, root := freshTree()
	reg := registry()
	pool := NewPool(8)

	insertKey(t, tr, reg, pool, root, 1)
	assert.Equal(t, 1, root.NrItems())
}

func TestCarrySplitGrowsRoot(t *testing.T) {
	tr, root := freshTree()
	reg := registry()
	pool := NewPool(8)

	var leaf *tree.Znode = root
	for i := 0; i < maxNodeItems+2; i++ {
		// re-resolve the current leaf each time: after a split the next
		// key always belongs in the rightmost leaf since keys are ascending
		// and each new key is greater than everything already inserted.
		cur := tr.Root()
		for cur.Level() != jnode.LevelLeaf {
			items := cur.Items()
			cur = items[len(items)-1].Child
		}
		leaf = cur
		insertKey(t, tr, reg, pool, leaf, i)
	}

	newRoot := tr.Root()
	assert.Greater(t, newRoot.Level(), jnode.LevelLeaf)
	assert.GreaterOrEqual(t, newRoot.NrItems(), 2)
}

func TestCarryCutEmptiesNodeAndRemovesDownlink(t *testing.T) {
	tr, root := freshTree()
	reg := registry()
	pool := NewPool(8)

	insertKey(t, tr, reg, pool, root, 1)
	require.Equal(t, 1, root.NrItems())

	lvl := NewLevel(jnode.LevelLeaf)
	lvl.Post(&Op{Kind: OpCut, Target: CarryNode{Kind: RefDirect, Base: root}, From: 0, To: 1})
	require.NoError(t, Carry(tr, reg, pool, lvl))
	assert.Equal(t, 0, root.NrItems())
}
