package codec

import (
	"strings"

	"github.com/sekiba/kifuroom/pkg/shogi"
)

// usiCodec implements the USI kifu text format: "position sfen <sfen>
// moves <m1> <m2> ..." or "position startpos moves ...". Per the design,
// a USI source always yields a single-line (non-branching) result, and
// emission defaults to the main line only; AllVariations emits one
// "position ..." line per leaf path, blank-line separated (exact
// delimiter/order is an open question deferred to v2; see DESIGN.md).
type usiCodec struct{}

func (usiCodec) Detect(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "position sfen ") || strings.HasPrefix(t, "position startpos")
}

func (usiCodec) Parse(text string) (*ParsedGame, []string, error) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "position ") {
		return nil, nil, malformed(1, 1, "not a USI position command")
	}
	t = strings.TrimPrefix(t, "position ")

	var initial string
	var rest string
	switch {
	case strings.HasPrefix(t, "startpos"):
		initial = shogi.Initial
		rest = strings.TrimPrefix(t, "startpos")
	case strings.HasPrefix(t, "sfen "):
		t = strings.TrimPrefix(t, "sfen ")
		idx := strings.Index(t, " moves")
		if idx < 0 {
			initial = strings.TrimSpace(t)
			rest = ""
		} else {
			initial = strings.TrimSpace(t[:idx])
			rest = t[idx:]
		}
		if _, err := shogi.Decode(initial); err != nil {
			return nil, nil, malformed(1, 1, "invalid sfen: %v", err)
		}
	default:
		return nil, nil, malformed(1, 1, "expected startpos or sfen after 'position '")
	}

	root := &ParsedNode{}
	cur := root
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "moves"))
	if rest != "" {
		for _, m := range strings.Fields(rest) {
			child := &ParsedNode{MoveUSI: shogi.NormalizeUSI(m)}
			cur.Children = append(cur.Children, child)
			cur = child
		}
	}

	if err := validateMoveLegality(initial, root); err != nil {
		return nil, nil, err
	}

	return &ParsedGame{InitialSFEN: initial, Root: root}, nil, nil
}

func (usiCodec) Emit(game *ParsedGame, opts EmitOptions) (string, error) {
	prefix := "position sfen " + game.InitialSFEN
	if game.InitialSFEN == shogi.Initial {
		prefix = "position startpos"
	}

	if !opts.AllVariations {
		moves := mainLine(game.Root)
		return formatPosition(prefix, moves), nil
	}

	var lines []string
	for _, path := range leafPaths(game.Root) {
		lines = append(lines, formatPosition(prefix, path))
	}
	if len(lines) == 0 {
		lines = append(lines, formatPosition(prefix, nil))
	}
	return strings.Join(lines, "\n\n"), nil
}

// FormatPositionCommand builds a "position ..." USI command for an
// arbitrary move chain -- the same rendering usiCodec.Emit uses for the
// main line, exposed for callers (the Analysis Coordinator) that build a
// position string from a tree path rather than a ParsedGame.
func FormatPositionCommand(initialSFEN string, moves []string) string {
	prefix := "position sfen " + initialSFEN
	if initialSFEN == shogi.Initial {
		prefix = "position startpos"
	}
	return formatPosition(prefix, moves)
}

func formatPosition(prefix string, moves []string) string {
	if len(moves) == 0 {
		return prefix
	}
	return prefix + " moves " + strings.Join(moves, " ")
}
