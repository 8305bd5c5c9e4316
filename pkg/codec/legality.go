package codec

import (
	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/shogi"
)

// validateMoveLegality replays every branch of root from initialSFEN,
// applying each move the same way pkg/tree.PlayMove eventually will
// (shogi.NormalizeUSI then shogi.Apply). It catches both malformed move
// tokens and moves that are syntactically fine but illegal against the
// position they're played from (e.g. capturing one's own piece) -- a
// client can feed either through POST /api/import, and neither is caught
// by a codec's own grammar, which only recognizes the *shape* of a move
// token. Returns a Malformed error with the offending move named, so
// handleImport can answer with its documented 400 {detail} contract
// instead of building a tree no codec can actually guarantee is legal.
func validateMoveLegality(initialSFEN string, root *ParsedNode) error {
	pos, err := shogi.Decode(initialSFEN)
	if err != nil {
		return kifuerr.New(kifuerr.Malformed, "invalid initial position: %v", err)
	}
	return validateNode(pos, root)
}

func validateNode(pos *shogi.Position, n *ParsedNode) error {
	for _, child := range n.Children {
		next, err := shogi.Apply(pos, shogi.NormalizeUSI(child.MoveUSI))
		if err != nil {
			return kifuerr.New(kifuerr.Malformed, "illegal move %q: %v", child.MoveUSI, err)
		}
		if err := validateNode(next, child); err != nil {
			return err
		}
	}
	return nil
}
