package shogi_test

import (
	"testing"

	"github.com/sekiba/kifuroom/pkg/shogi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	tests := []string{
		shogi.Initial,
		"lnsgkgsnl/1r5b1/pppppp1pp/6p2/9/2P6/PP1PPPPPP/1B5R1/LNSGKGSNL w - 3",
		"lnsgkgsnl/1r7/pppppppp1/9/8p/2P6/PP1PPPPPP/1B5R1/LNSGKGSNL b - 5",
	}
	for _, tt := range tests {
		pos, err := shogi.Decode(tt)
		require.NoError(t, err)
		assert.Equal(t, tt, shogi.Encode(pos))
	}
}

func TestApplyBoardMove(t *testing.T) {
	pos, err := shogi.Decode(shogi.Initial)
	require.NoError(t, err)

	next, err := shogi.Apply(pos, "7g7f")
	require.NoError(t, err)

	assert.Equal(t, shogi.White, next.Turn())
	assert.Equal(t, 2, next.Ply())

	_, stillThere := next.Square(shogi.NewSquare(7, 7))
	assert.False(t, stillThere)

	o, ok := next.Square(shogi.NewSquare(7, 6))
	require.True(t, ok)
	assert.Equal(t, shogi.Pawn, o.Piece.Kind)
	assert.Equal(t, shogi.Black, o.Color)
}

func TestApplyDropRequiresHand(t *testing.T) {
	pos, err := shogi.Decode(shogi.Initial)
	require.NoError(t, err)

	_, err = shogi.Apply(pos, "P*5e")
	assert.Error(t, err)
}

func TestApplyCapturedPieceEntersHand(t *testing.T) {
	pos, err := shogi.Decode("9/9/9/4p4/4S4/9/9/9/9 b - 1")
	require.NoError(t, err)

	next, err := shogi.Apply(pos, "5e5d")
	require.NoError(t, err)

	o, ok := next.Square(shogi.NewSquare(5, 4))
	require.True(t, ok)
	assert.Equal(t, shogi.Silver, o.Piece.Kind)
	assert.Equal(t, 1, next.Hand(shogi.Black)[shogi.Pawn])
}

func TestApplyInvalidMove(t *testing.T) {
	pos, err := shogi.Decode(shogi.Initial)
	require.NoError(t, err)

	_, err = shogi.Apply(pos, "5e5d")
	assert.Error(t, err)
}
