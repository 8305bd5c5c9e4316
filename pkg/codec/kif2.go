package codec

import (
	"strings"

	"github.com/sekiba/kifuroom/pkg/shogi"
)

// kif2Codec implements a reduced variant of the terse, side-marked KIF2
// (KI2) format: no per-move numbering, moves prefixed with ▲ (black/sente)
// or △ (white/gote) alternating strictly by ply depth from the root. As
// with kifCodec, the real KIF2 grammar (kanji square/piece notation) is
// out of scope; USI-style coordinates are kept so the codec round-trips
// exactly. Detection is intentionally conservative: it requires an
// explicit side marker, falling back to Unknown rather than guessing, per
// the design's open question on KIF2 detection.
//
// Layout:
//
//	SFEN: startpos | <sfen>   (omitted line means startpos)
//	<movetext, moves prefixed ▲/△, no numbering>
//
// A distinct "SFEN:" header (rather than kifCodec's "INITIAL:") keeps the
// two formats' Detect heuristics from colliding on a shared prefix.
type kif2Codec struct{}

const (
	blackMarker    = "▲"
	whiteMarker    = "△"
	kif2SFENPrefix = "SFEN:"
)

func (kif2Codec) Detect(text string) bool {
	return strings.Contains(text, blackMarker) || strings.Contains(text, whiteMarker)
}

func (kif2Codec) Parse(text string) (*ParsedGame, []string, error) {
	lines := strings.Split(text, "\n")
	game := &ParsedGame{InitialSFEN: shogi.Initial, Root: &ParsedNode{}}

	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, kif2SFENPrefix) {
			v := strings.TrimSpace(strings.TrimPrefix(line, kif2SFENPrefix))
			if v == "" || v == "startpos" {
				game.InitialSFEN = shogi.Initial
			} else {
				if _, err := shogi.Decode(v); err != nil {
					return nil, nil, malformed(i+1, 1, "invalid SFEN header: %v", err)
				}
				game.InitialSFEN = v
			}
			i++
		}
		break
	}

	body := strings.Join(lines[i:], "\n")
	tokens := stripSideMarkers(tokenizeMoveText(body))

	if rest, err := parseMoveText(tokens, game.Root); err != nil {
		return nil, nil, malformed(i+1, 1, "%v", err)
	} else if len(rest) != 0 {
		return nil, nil, malformed(i+1, 1, "unexpected trailing token %q", rest[0])
	}

	if err := validateMoveLegality(game.InitialSFEN, game.Root); err != nil {
		return nil, nil, err
	}

	return game, nil, nil
}

func stripSideMarkers(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		switch {
		case tok == "(" || tok == ")" || strings.HasPrefix(tok, "{"):
			out[i] = tok
		default:
			out[i] = strings.TrimPrefix(strings.TrimPrefix(tok, blackMarker), whiteMarker)
		}
	}
	return out
}

func (kif2Codec) Emit(game *ParsedGame, _ EmitOptions) (string, error) {
	var sb strings.Builder

	if game.InitialSFEN != "" && game.InitialSFEN != shogi.Initial {
		sb.WriteString(kif2SFENPrefix + " " + game.InitialSFEN + "\n")
	}

	text := emitMoveText(game.Root, 1, func(move string, depth int) string {
		marker := blackMarker
		if depth%2 == 0 {
			marker = whiteMarker
		}
		return marker + move
	})
	sb.WriteString(text)
	sb.WriteString("\n")

	return sb.String(), nil
}
