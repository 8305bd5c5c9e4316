package analysis

import (
	"github.com/sekiba/kifuroom/pkg/codec"
	"github.com/sekiba/kifuroom/pkg/tree"
)

// PositionResolver builds the USI "position ..." command for a node: the
// game's root SFEN plus the chain of moves from root to that node.
type PositionResolver interface {
	PositionCommand(nodeID string) (string, error)
}

// TreeResolver adapts a Tree to PositionResolver.
type TreeResolver struct {
	Tree *tree.Tree
}

func (r TreeResolver) PositionCommand(nodeID string) (string, error) {
	path, err := r.Tree.PathTo(nodeID)
	if err != nil {
		return "", err
	}

	game := r.Tree.Game()
	moves := make([]string, 0, len(path))
	for _, id := range path[1:] { // skip the root, which has no MoveUSI
		n, err := r.Tree.Node(id)
		if err != nil {
			return "", err
		}
		moves = append(moves, n.MoveUSI)
	}
	return codec.FormatPositionCommand(game.InitialSFEN, moves), nil
}
