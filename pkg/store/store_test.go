package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/shogi"
	"github.com/sekiba/kifuroom/pkg/store"
	"github.com/sekiba/kifuroom/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleGame() (tree.Game, []tree.Node) {
	now := time.Now().Truncate(time.Millisecond)
	game := tree.Game{
		ID:            "g1",
		Title:         "Sample",
		CreatedAt:     now,
		UpdatedAt:     now,
		InitialSFEN:   shogi.Initial,
		RootNodeID:    "root",
		CurrentNodeID: "root",
		Meta:          map[string]string{"event": "test"},
		UIState:       tree.UIState{MultiPV: 2},
	}
	nodes := []tree.Node{
		{ID: "root", GameID: "g1", PositionSFEN: shogi.Initial, CreatedAt: now},
		{ID: "n1", GameID: "g1", ParentID: "root", OrderIndex: 0, MoveUSI: "7g7f", PositionSFEN: shogi.Initial, CreatedAt: now},
	}
	return game, nodes
}

func TestPutGameAndGetGameWithTreeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	game, nodes := sampleGame()

	require.NoError(t, s.PutGame(ctx, game, nodes))

	got, gotNodes, err := s.GetGameWithTree(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, game.Title, got.Title)
	assert.Equal(t, game.InitialSFEN, got.InitialSFEN)
	assert.Equal(t, game.Meta, got.Meta)
	assert.Equal(t, game.UIState, got.UIState)
	assert.Len(t, gotNodes, 2)
}

func TestGetGameWithTreeNotFound(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.GetGameWithTree(context.Background(), "missing")
	require.Error(t, err)
	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.NotFound, kind)
}

func TestSetCurrentNodeUpdatesCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	game, nodes := sampleGame()
	require.NoError(t, s.PutGame(ctx, game, nodes))

	require.NoError(t, s.SetCurrentNode(ctx, "g1", "n1"))

	got, _, err := s.GetGameWithTree(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.CurrentNodeID)
}

func TestSetCurrentNodeUnknownGame(t *testing.T) {
	s := openTestStore(t)
	err := s.SetCurrentNode(context.Background(), "missing", "n1")
	require.Error(t, err)
	kind, _ := kifuerr.KindOf(err)
	assert.Equal(t, kifuerr.NotFound, kind)
}

func TestUpsertNodeAddsAndUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	game, nodes := sampleGame()
	require.NoError(t, s.PutGame(ctx, game, nodes))

	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.UpsertNode(ctx, tree.Node{
		ID: "n2", GameID: "g1", ParentID: "root", OrderIndex: 1, MoveUSI: "2g2f",
		PositionSFEN: shogi.Initial, CreatedAt: now,
	}))

	_, gotNodes, err := s.GetGameWithTree(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, gotNodes, 3)

	require.NoError(t, s.UpsertNode(ctx, tree.Node{
		ID: "n2", GameID: "g1", ParentID: "root", OrderIndex: 1, MoveUSI: "2g2f",
		Comment: "interesting", PositionSFEN: shogi.Initial, CreatedAt: now,
	}))
	_, gotNodes, err = s.GetGameWithTree(ctx, "g1")
	require.NoError(t, err)
	var found bool
	for _, n := range gotNodes {
		if n.ID == "n2" {
			found = true
			assert.Equal(t, "interesting", n.Comment)
		}
	}
	assert.True(t, found)
}

func TestRewriteChildrenOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	game, nodes := sampleGame()
	require.NoError(t, s.PutGame(ctx, game, nodes))
	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, s.UpsertNode(ctx, tree.Node{
		ID: "n2", GameID: "g1", ParentID: "root", OrderIndex: 1, MoveUSI: "2g2f",
		PositionSFEN: shogi.Initial, CreatedAt: now,
	}))

	require.NoError(t, s.RewriteChildrenOrder(ctx, "root", []string{"n2", "n1"}))

	_, gotNodes, err := s.GetGameWithTree(ctx, "g1")
	require.NoError(t, err)
	order := map[string]int{}
	for _, n := range gotNodes {
		order[n.ID] = n.OrderIndex
	}
	assert.Equal(t, 0, order["n2"])
	assert.Equal(t, 1, order["n1"])
}

func TestListGamesOrdersByUpdatedAtDescAndPaginates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		g, nodes := sampleGame()
		g.ID = id
		g.Title = id
		g.RootNodeID = id + "-root"
		g.CurrentNodeID = id + "-root"
		nodes[0].ID = id + "-root"
		nodes[0].GameID = id
		g.UpdatedAt = g.UpdatedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.PutGame(ctx, g, nodes[:1]))
	}

	items, total, err := s.ListGames(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].ID)
	assert.Equal(t, "b", items[1].ID)

	items, _, err = s.ListGames(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestDeleteGameRemovesRowsAndNodes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	game, nodes := sampleGame()
	require.NoError(t, s.PutGame(ctx, game, nodes))

	require.NoError(t, s.DeleteGame(ctx, "g1"))

	_, _, err := s.GetGameWithTree(ctx, "g1")
	require.Error(t, err)
	kind, _ := kifuerr.KindOf(err)
	assert.Equal(t, kifuerr.NotFound, kind)
}

func TestAppendSnapshotAndLatestSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LatestSnapshot(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AppendSnapshot(ctx, store.AnalysisSnapshotRecord{
		NodeID: "n1", ElapsedMS: 500, MultiPV: 1, LinesJSON: `[{"pv_index":1}]`,
	}))
	require.NoError(t, s.AppendSnapshot(ctx, store.AnalysisSnapshotRecord{
		NodeID: "n1", ElapsedMS: 1500, MultiPV: 1, LinesJSON: `[{"pv_index":1,"depth":4}]`,
	}))

	rec, ok, err := s.LatestSnapshot(ctx, "n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1500), rec.ElapsedMS)
}

func TestAppStatePutAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetAppState(ctx, "last_game")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutAppState(ctx, "last_game", "g1"))
	v, ok, err := s.GetAppState(ctx, "last_game")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "g1", v)

	require.NoError(t, s.PutAppState(ctx, "last_game", "g2"))
	v, _, _ = s.GetAppState(ctx, "last_game")
	assert.Equal(t, "g2", v)
}
