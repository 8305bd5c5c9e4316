package codec_test

import (
	"testing"

	"github.com/sekiba/kifuroom/pkg/codec"
	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/shogi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDetectUSI(t *testing.T) {
	r := codec.NewRegistry()
	assert.Equal(t, codec.USI, r.Detect("position startpos moves 7g7f 3c3d"))
	assert.Equal(t, codec.USI, r.Detect("position sfen "+shogi.Initial+" moves 7g7f"))
}

func TestRegistryDetectKIF(t *testing.T) {
	r := codec.NewRegistry()
	text := "TITLE: example\nMOVES:\n1. 7g7f"
	assert.Equal(t, codec.KIF, r.Detect(text))
}

func TestRegistryDetectKIF2(t *testing.T) {
	r := codec.NewRegistry()
	text := "▲7g7f △3c3d"
	assert.Equal(t, codec.KIF2, r.Detect(text))
}

func TestRegistryDetectUnknownFallback(t *testing.T) {
	r := codec.NewRegistry()
	assert.Equal(t, codec.Unknown, r.Detect("this is just some prose, not a kifu at all"))
}

func TestUSIRoundTripMainLine(t *testing.T) {
	r := codec.NewRegistry()
	text := "position startpos moves 7g7f 3c3d 2g2f"

	game, warnings, err := r.Parse(codec.USI, text)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	out, err := r.Emit(codec.USI, game, codec.EmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestUSIRoundTripSFEN(t *testing.T) {
	r := codec.NewRegistry()
	custom := "9/9/9/4p4/4S4/9/9/9/9 b - 1"
	text := "position sfen " + custom + " moves 5e5d"

	game, _, err := r.Parse(codec.USI, text)
	require.NoError(t, err)
	assert.Equal(t, custom, game.InitialSFEN)

	out, err := r.Emit(codec.USI, game, codec.EmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestUSIEmitAllVariations(t *testing.T) {
	r := codec.NewRegistry()
	game, _, err := r.Parse(codec.USI, "position startpos moves 7g7f")
	require.NoError(t, err)

	// Graft a second leaf path onto the root to exercise branching emission.
	alt := &codec.ParsedNode{MoveUSI: "2g2f"}
	game.Root.Children = append(game.Root.Children, alt)

	out, err := r.Emit(codec.USI, game, codec.EmitOptions{AllVariations: true})
	require.NoError(t, err)
	assert.Equal(t, "position startpos moves 7g7f\n\nposition startpos moves 2g2f", out)
}

func TestKIFRoundTrip(t *testing.T) {
	r := codec.NewRegistry()

	root := &codec.ParsedNode{}
	m1 := &codec.ParsedNode{MoveUSI: "7g7f"}
	m2 := &codec.ParsedNode{MoveUSI: "3c3d", Comment: "standard reply"}
	alt := &codec.ParsedNode{MoveUSI: "2c2d"}
	m3 := &codec.ParsedNode{MoveUSI: "2g2f"}
	root.Children = []*codec.ParsedNode{m1}
	m1.Children = []*codec.ParsedNode{m2, alt}
	m2.Children = []*codec.ParsedNode{m3}

	game := &codec.ParsedGame{
		Title:       "opening study",
		Meta:        map[string]string{"event": "practice"},
		InitialSFEN: shogi.Initial,
		Root:        root,
	}

	text, err := r.Emit(codec.KIF, game, codec.EmitOptions{})
	require.NoError(t, err)

	parsed, warnings, err := r.Parse(codec.KIF, text)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, game.Title, parsed.Title)
	assert.Equal(t, game.Meta, parsed.Meta)
	assert.Equal(t, game.InitialSFEN, parsed.InitialSFEN)
	require.Len(t, parsed.Root.Children, 1)
	assert.Equal(t, "7g7f", parsed.Root.Children[0].MoveUSI)
	require.Len(t, parsed.Root.Children[0].Children, 2)
	assert.Equal(t, "3c3d", parsed.Root.Children[0].Children[0].MoveUSI)
	assert.Equal(t, "standard reply", parsed.Root.Children[0].Children[0].Comment)
	assert.Equal(t, "2c2d", parsed.Root.Children[0].Children[1].MoveUSI)

	// A second emit/parse cycle must be idempotent: the text it produces
	// does not keep drifting.
	text2, err := r.Emit(codec.KIF, parsed, codec.EmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, text, text2)
}

func TestKIF2RoundTrip(t *testing.T) {
	r := codec.NewRegistry()

	root := &codec.ParsedNode{}
	m1 := &codec.ParsedNode{MoveUSI: "7g7f"}
	m2 := &codec.ParsedNode{MoveUSI: "3c3d"}
	root.Children = []*codec.ParsedNode{m1}
	m1.Children = []*codec.ParsedNode{m2}

	game := &codec.ParsedGame{InitialSFEN: shogi.Initial, Root: root}

	text, err := r.Emit(codec.KIF2, game, codec.EmitOptions{})
	require.NoError(t, err)
	assert.Contains(t, text, "▲7g7f")
	assert.Contains(t, text, "△3c3d")

	parsed, _, err := r.Parse(codec.KIF2, text)
	require.NoError(t, err)
	require.Len(t, parsed.Root.Children, 1)
	assert.Equal(t, "7g7f", parsed.Root.Children[0].MoveUSI)
	require.Len(t, parsed.Root.Children[0].Children, 1)
	assert.Equal(t, "3c3d", parsed.Root.Children[0].Children[0].MoveUSI)
}

func TestKIFParseIgnoresUnrecognizedHeader(t *testing.T) {
	r := codec.NewRegistry()
	text := "TITLE: x\nRESULT: black wins\nMOVES:\n1. 7g7f"

	_, warnings, err := r.Parse(codec.KIF, text)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "RESULT:")
}

func TestKIFParseUnterminatedVariationIsMalformed(t *testing.T) {
	r := codec.NewRegistry()
	text := "MOVES:\n1. 7g7f (2. 3c3d"

	_, _, err := r.Parse(codec.KIF, text)
	require.Error(t, err)
}

func TestImportAutodetect(t *testing.T) {
	r := codec.NewRegistry()
	f, game, _, err := r.Import("position startpos moves 7g7f")
	require.NoError(t, err)
	assert.Equal(t, codec.USI, f)
	assert.Equal(t, shogi.Initial, game.InitialSFEN)
}

func TestImportUnknownFormat(t *testing.T) {
	r := codec.NewRegistry()
	_, _, _, err := r.Import("not a kifu")
	require.Error(t, err)
}

func TestUSIParseRejectsIllegalMove(t *testing.T) {
	r := codec.NewRegistry()
	// 9i9i moves onto the square it starts from, capturing the mover's own
	// piece -- syntactically a well-formed USI move, but illegal against
	// the position it is played from.
	_, _, err := r.Parse(codec.USI, "position startpos moves 9i9i")
	require.Error(t, err)

	var kerr *kifuerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kifuerr.Malformed, kerr.Kind)
}

func TestKIFParseRejectsIllegalMove(t *testing.T) {
	r := codec.NewRegistry()
	text := "MOVES:\n1. 9i9i"
	_, _, err := r.Parse(codec.KIF, text)
	require.Error(t, err)

	var kerr *kifuerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kifuerr.Malformed, kerr.Kind)
}

func TestBuildTreeAndExportGameRoundTrip(t *testing.T) {
	root := &codec.ParsedNode{}
	m1 := &codec.ParsedNode{MoveUSI: "7g7f"}
	m2 := &codec.ParsedNode{MoveUSI: "3c3d", Comment: "main"}
	alt := &codec.ParsedNode{MoveUSI: "2c2d"}
	root.Children = []*codec.ParsedNode{m1}
	m1.Children = []*codec.ParsedNode{m2, alt}

	game := &codec.ParsedGame{Title: "t", InitialSFEN: shogi.Initial, Root: root}

	tr := codec.BuildTree(game)
	exported := codec.ExportGame(tr)

	require.Len(t, exported.Root.Children, 1)
	assert.Equal(t, "7g7f", exported.Root.Children[0].MoveUSI)
	require.Len(t, exported.Root.Children[0].Children, 2)
	assert.Equal(t, "3c3d", exported.Root.Children[0].Children[0].MoveUSI)
	assert.Equal(t, "main", exported.Root.Children[0].Children[0].Comment)
	assert.Equal(t, "2c2d", exported.Root.Children[0].Children[1].MoveUSI)
}
