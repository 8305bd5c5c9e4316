package tree_test

import (
	"testing"

	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/shogi"
	"github.com/sekiba/kifuroom/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayMoveDedup(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	id1, err := g.PlayMove(root, "7g7f")
	require.NoError(t, err)

	id2, err := g.PlayMove(root, "7G7F") // case-insensitive dedup
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, id1, g.Game().CurrentNodeID)

	children, err := g.ChildrenOf(root)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestPlayMoveInvalidMove(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	_, err := g.PlayMove(root, "5e5d")
	require.Error(t, err)

	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.InvalidMove, kind)
}

func TestPlayMoveUnknownNode(t *testing.T) {
	g := tree.New("", shogi.Initial)

	_, err := g.PlayMove("does-not-exist", "7g7f")
	require.Error(t, err)

	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.UnknownNode, kind)
}

func TestSFENCacheCoherence(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	c1, err := g.PlayMove(root, "7g7f")
	require.NoError(t, err)
	c2, err := g.PlayMove(c1, "3c3d")
	require.NoError(t, err)

	for _, id := range []string{c1, c2} {
		n, err := g.Node(id)
		require.NoError(t, err)

		parentID, err := g.ParentOf(id)
		require.NoError(t, err)
		parent, err := g.Node(parentID)
		require.NoError(t, err)

		parentPos, err := shogi.Decode(parent.PositionSFEN)
		require.NoError(t, err)
		want, err := shogi.Apply(parentPos, n.MoveUSI)
		require.NoError(t, err)
		assert.Equal(t, shogi.Encode(want), n.PositionSFEN)
	}
}

func TestReorderChildren(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	c1, err := g.PlayMove(root, "7g7f")
	require.NoError(t, err)
	require.NoError(t, g.Jump(root))
	c2, err := g.PlayMove(root, "2g2f")
	require.NoError(t, err)

	require.NoError(t, g.ReorderChildren(root, []string{c2, c1}))

	children, err := g.ChildrenOf(root)
	require.NoError(t, err)
	assert.Equal(t, []string{c2, c1}, children)

	n1, _ := g.Node(c1)
	n2, _ := g.Node(c2)
	assert.Equal(t, 1, n1.OrderIndex)
	assert.Equal(t, 0, n2.OrderIndex)
}

func TestReorderChildrenBadPermutation(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	c1, err := g.PlayMove(root, "7g7f")
	require.NoError(t, err)

	err = g.ReorderChildren(root, []string{c1, "bogus"})
	require.Error(t, err)

	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.BadPermutation, kind)

	// All-or-nothing: order is unchanged.
	children, err := g.ChildrenOf(root)
	require.NoError(t, err)
	assert.Equal(t, []string{c1}, children)
}

func TestSiblingOrderGaplessness(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	moves := []string{"7g7f", "2g2f", "6g6f"}
	var ids []string
	for _, m := range moves {
		require.NoError(t, g.Jump(root))
		id, err := g.PlayMove(root, m)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, g.ReorderChildren(root, []string{ids[2], ids[0], ids[1]}))

	children, err := g.ChildrenOf(root)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, id := range children {
		n, err := g.Node(id)
		require.NoError(t, err)
		seen[n.OrderIndex] = true
	}
	for i := 0; i < len(children); i++ {
		assert.True(t, seen[i], "missing order_index %v", i)
	}
}

func TestPathToRootToLeaf(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	c1, err := g.PlayMove(root, "7g7f")
	require.NoError(t, err)
	c2, err := g.PlayMove(c1, "3c3d")
	require.NoError(t, err)

	path, err := g.PathTo(c2)
	require.NoError(t, err)
	assert.Equal(t, []string{root, c1, c2}, path)
}

func TestSetComment(t *testing.T) {
	g := tree.New("", shogi.Initial)
	root := g.Game().RootNodeID

	require.NoError(t, g.SetComment(root, "opening thoughts"))

	n, err := g.Node(root)
	require.NoError(t, err)
	assert.Equal(t, "opening thoughts", n.Comment)
}
