package router_test

import (
	"testing"

	"github.com/sekiba/kifuroom/internal/router"
	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/shogi"
	"github.com/sekiba/kifuroom/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePlayMove(t *testing.T) {
	raw := []byte(`{"type":"node:play_move","session_id":"S1","owner_token":"T1","payload":{"from_node_id":"root","move_usi":"7g7f"}}`)

	intent, err := router.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, router.TypeNodePlayMove, intent.Type)
	assert.Equal(t, "S1", intent.SessionID)

	payload, ok := intent.Payload.(router.NodePlayMovePayload)
	require.True(t, ok)
	assert.Equal(t, "root", payload.FromNodeID)
	assert.Equal(t, "7g7f", payload.MoveUSI)
}

func TestDecodeTakeoverHasNoPayload(t *testing.T) {
	intent, err := router.Decode([]byte(`{"type":"session:takeover"}`))
	require.NoError(t, err)
	assert.Nil(t, intent.Payload)
}

func TestDecodeUnknownTypeIsMalformed(t *testing.T) {
	_, err := router.Decode([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.Malformed, kind)
}

func TestDecodeBadJSONIsMalformed(t *testing.T) {
	_, err := router.Decode([]byte(`not json`))
	require.Error(t, err)
	kind, _ := kifuerr.KindOf(err)
	assert.Equal(t, kifuerr.Malformed, kind)
}

func TestRequiresOwner(t *testing.T) {
	assert.False(t, router.RequiresOwner(router.TypeSessionTakeover))
	assert.True(t, router.RequiresOwner(router.TypeNodePlayMove))
}

func TestEncodeWrapsEnvelope(t *testing.T) {
	raw, err := router.Encode(router.TypeToast, router.ToastPayload{Level: "error", Message: "boom"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"toast"`)
	assert.Contains(t, string(raw), `"message":"boom"`)
}

func TestBuildFullGameStateReflectsTree(t *testing.T) {
	tr := tree.New("game", shogi.Initial)
	game := tr.Game()

	state, err := router.BuildFullGameState(tr)
	require.NoError(t, err)
	assert.Equal(t, game.ID, state.GameID)
	assert.Equal(t, game.RootNodeID, state.RootNodeID)
	assert.Len(t, state.Nodes, 1)
	assert.Equal(t, []string{game.RootNodeID}, state.CurrentPathNodeIDs)
}
