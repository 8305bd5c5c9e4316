package codec

import (
	"github.com/sekiba/kifuroom/pkg/tree"
)

// BuildTree creates a new Tree from a parsed game, replaying every branch
// (not just the main line) so imported variations survive. The returned
// tree's CurrentNodeID is left at the root; callers typically Jump it to
// the main line's leaf or leave it for the owner to navigate.
func BuildTree(game *ParsedGame) *tree.Tree {
	t := tree.New(game.Title, game.InitialSFEN)
	root := t.Game().RootNodeID

	meta := game.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	t.SetMeta(game.Title, meta)

	var attach func(parentID string, n *ParsedNode) error
	attach = func(parentID string, n *ParsedNode) error {
		for _, child := range n.Children {
			childID, err := t.PlayMove(parentID, child.MoveUSI)
			if err != nil {
				return err
			}
			if child.Comment != "" {
				if err := t.SetComment(childID, child.Comment); err != nil {
					return err
				}
			}
			if err := attach(childID, child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := attach(root, game.Root); err != nil {
		// Every codec's Parse validates move legality against InitialSFEN
		// before returning a ParsedGame (see validateMoveLegality), so a
		// ParsedGame reaching here can only fail replay if it was built by
		// hand rather than through a codec -- a caller bug, not
		// attacker-controlled input.
		panic(err)
	}
	// PlayMove moved the cursor to each node it created; put it back.
	_ = t.Jump(root)
	return t
}

// ExportGame walks a Tree into a ParsedGame suitable for FormatCodec.Emit.
// The walk follows ChildrenIndex order, so Children[0] in the result is
// always that node's main-line continuation.
func ExportGame(t *tree.Tree) *ParsedGame {
	game := t.Game()
	children := t.ChildrenIndex()
	nodes := map[string]tree.Node{}
	for _, n := range t.Nodes() {
		nodes[n.ID] = n
	}

	var walk func(id string) *ParsedNode
	walk = func(id string) *ParsedNode {
		n := nodes[id]
		out := &ParsedNode{MoveUSI: n.MoveUSI, Comment: n.Comment}
		for _, childID := range children[id] {
			out.Children = append(out.Children, walk(childID))
		}
		return out
	}

	return &ParsedGame{
		Title:       game.Title,
		Meta:        game.Meta,
		InitialSFEN: game.InitialSFEN,
		Root:        walk(game.RootNodeID),
	}
}
