// Package tree implements the authoritative, branching game-tree model: a
// single Game's root-to-leaf positions and the operations the State
// Synchronizer applies to it. Only the Synchronizer goroutine touches a
// given Tree, but the mutex here mirrors pkg/engine.Engine in the teacher
// so the type stays safe to use from tests and tools outside that
// goroutine.
package tree

import (
	"sort"
	"sync"
	"time"

	"github.com/sekiba/kifuroom/pkg/idgen"
	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/shogi"
)

// UIState is the free-form presentation state carried alongside a Game.
// AnalysisEnabled is deliberately not honored on restart: see Game doc.
type UIState struct {
	BoardFlipped    bool
	MultiPV         int
	AnalysisEnabled bool
	Scale           float64
}

// Game is one kifu's metadata. RootNodeID and CurrentNodeID always resolve
// to nodes belonging to this game. AnalysisEnabled in UIState is not
// honored on restart -- analysis must be explicitly re-enabled by the
// owner, since re-spawning an engine and restarting an infinite search
// behind the user's back would violate the "server never assumes a state
// it has not produced" rule.
type Game struct {
	ID            string
	Title         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	InitialSFEN   string
	RootNodeID    string
	CurrentNodeID string
	Meta          map[string]string
	UIState       UIState
}

// Node is one position in the variation tree. ParentID is empty iff the
// node is the root; MoveUSI is empty iff the node is the root.
type Node struct {
	ID           string
	GameID       string
	ParentID     string
	OrderIndex   int
	MoveUSI      string
	Label        string
	Comment      string
	PositionSFEN string
	CreatedAt    time.Time
}

// Tree is the in-memory authoritative tree for one game.
type Tree struct {
	mu       sync.Mutex
	game     Game
	nodes    map[string]*Node
	children map[string][]string // parent id -> ordered child ids
}

// New creates a fresh game rooted at initialSFEN, with title as given.
func New(title, initialSFEN string) *Tree {
	now := time.Now()
	rootID := idgen.New()

	t := &Tree{
		game: Game{
			ID:            idgen.New(),
			Title:         title,
			CreatedAt:     now,
			UpdatedAt:     now,
			InitialSFEN:   initialSFEN,
			RootNodeID:    rootID,
			CurrentNodeID: rootID,
			Meta:          map[string]string{},
		},
		nodes:    map[string]*Node{},
		children: map[string][]string{},
	}
	t.nodes[rootID] = &Node{
		ID:           rootID,
		GameID:       t.game.ID,
		PositionSFEN: initialSFEN,
		CreatedAt:    now,
	}
	return t
}

// Load rebuilds a Tree from persisted rows, e.g. on startup crash recovery.
// It trusts the stored topology (invariants were enforced when the rows
// were written) and only rebuilds the in-memory indices.
func Load(game Game, nodes []Node) *Tree {
	t := &Tree{
		game:     game,
		nodes:    map[string]*Node{},
		children: map[string][]string{},
	}
	for i := range nodes {
		n := nodes[i]
		t.nodes[n.ID] = &n
		if n.ParentID != "" {
			t.children[n.ParentID] = append(t.children[n.ParentID], n.ID)
		}
	}
	for parent := range t.children {
		sort.Slice(t.children[parent], func(i, j int) bool {
			return t.nodes[t.children[parent][i]].OrderIndex < t.nodes[t.children[parent][j]].OrderIndex
		})
	}
	return t
}

// Game returns a copy of the game metadata.
func (t *Tree) Game() Game {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.game
}

// SetMeta replaces title and meta (game:save, BuildTree). The UI state is
// changed through SetUIState.
func (t *Tree) SetMeta(title string, meta map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.game.Title = title
	t.game.Meta = meta
	t.game.UpdatedAt = time.Now()
}

// SetUIState replaces the presentation state.
func (t *Tree) SetUIState(ui UIState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.game.UIState = ui
	t.game.UpdatedAt = time.Now()
}

// Node returns a copy of the node, or UnknownNode.
func (t *Tree) Node(id string) (Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.node(id)
}

func (t *Tree) node(id string) (Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, kifuerr.New(kifuerr.UnknownNode, "node %v not found", id)
	}
	return *n, nil
}

// Nodes returns a flat copy of every node, for FullGameState rendering.
func (t *Tree) Nodes() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	ret := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		ret = append(ret, *n)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.Before(ret[j].CreatedAt) })
	return ret
}

// ChildrenIndex returns a copy of the parent id -> ordered child ids map.
func (t *Tree) ChildrenIndex() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ret := make(map[string][]string, len(t.children))
	for k, v := range t.children {
		cp := make([]string, len(v))
		copy(cp, v)
		ret[k] = cp
	}
	return ret
}

// ChildrenOf returns the ordered child ids of a node. UnknownNode if the
// parent does not exist.
func (t *Tree) ChildrenOf(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.node(id); err != nil {
		return nil, err
	}
	cp := make([]string, len(t.children[id]))
	copy(cp, t.children[id])
	return cp, nil
}

// ParentOf returns the parent id, or "" if id is the root. UnknownNode if
// id does not exist.
func (t *Tree) ParentOf(id string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.node(id)
	if err != nil {
		return "", err
	}
	return n.ParentID, nil
}

// FirstChildOf returns the main-line child, if any.
func (t *Tree) FirstChildOf(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	children := t.children[id]
	if len(children) == 0 {
		return "", false
	}
	return children[0], true
}

// PathTo returns the root-to-node chain of node ids, used for move list
// rendering and engine position strings.
func (t *Tree) PathTo(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.node(id); err != nil {
		return nil, err
	}

	var path []string
	cur := id
	for {
		path = append([]string{cur}, path...)
		n := t.nodes[cur]
		if n.ParentID == "" {
			break
		}
		cur = n.ParentID
	}
	return path, nil
}

// PlayMove plays a move from fromNodeID. If a child of fromNodeID already
// has an equal MoveUSI (after NormalizeUSI), that child's id is returned
// and no new node is created -- play_move is idempotent, per the design.
// Otherwise a new child is created with OrderIndex equal to the current
// child count, its PositionSFEN cached from applying the move to the
// parent's PositionSFEN, and CurrentNodeID advanced to the new node.
func (t *Tree) PlayMove(fromNodeID, moveUSI string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, err := t.node(fromNodeID)
	if err != nil {
		return "", err
	}

	normalized := shogi.NormalizeUSI(moveUSI)
	for _, childID := range t.children[fromNodeID] {
		if shogi.NormalizeUSI(t.nodes[childID].MoveUSI) == normalized {
			t.game.CurrentNodeID = childID
			return childID, nil
		}
	}

	parentPos, err := shogi.Decode(parent.PositionSFEN)
	if err != nil {
		return "", kifuerr.Wrap(kifuerr.InvalidMove, err, "cached position for %v is corrupt", fromNodeID)
	}
	childPos, err := shogi.Apply(parentPos, normalized)
	if err != nil {
		return "", kifuerr.Wrap(kifuerr.InvalidMove, err, "move %v from %v", moveUSI, fromNodeID)
	}

	id := idgen.New()
	node := &Node{
		ID:           id,
		GameID:       t.game.ID,
		ParentID:     fromNodeID,
		OrderIndex:   len(t.children[fromNodeID]),
		MoveUSI:      normalized,
		Label:        moveUSI,
		PositionSFEN: shogi.Encode(childPos),
		CreatedAt:    time.Now(),
	}
	t.nodes[id] = node
	t.children[fromNodeID] = append(t.children[fromNodeID], id)
	t.game.CurrentNodeID = id
	t.game.UpdatedAt = time.Now()
	return id, nil
}

// Jump sets CurrentNodeID. UnknownNode if the node does not exist.
func (t *Tree) Jump(nodeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.node(nodeID); err != nil {
		return err
	}
	t.game.CurrentNodeID = nodeID
	return nil
}

// ReorderChildren rewrites OrderIndex for parentID's children to match
// orderedChildIDs, which must be a permutation of the current children.
// All-or-nothing: BadPermutation leaves the tree untouched. CurrentNodeID
// is left alone even if it is among the reordered children, since
// OrderIndex is presentation only (an explicit Open Question resolution;
// see DESIGN.md).
func (t *Tree) ReorderChildren(parentID string, orderedChildIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.node(parentID); err != nil {
		return err
	}

	current := t.children[parentID]
	if !isPermutation(current, orderedChildIDs) {
		return kifuerr.New(kifuerr.BadPermutation, "ordered_child_ids is not a permutation of children of %v", parentID)
	}

	for i, id := range orderedChildIDs {
		t.nodes[id].OrderIndex = i
	}
	t.children[parentID] = append([]string(nil), orderedChildIDs...)
	return nil
}

func isPermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	count := map[string]int{}
	for _, id := range a {
		count[id]++
	}
	for _, id := range b {
		count[id]--
	}
	for _, n := range count {
		if n != 0 {
			return false
		}
	}
	return true
}

// SetComment replaces a node's comment text. UnknownNode if it does not
// exist.
func (t *Tree) SetComment(nodeID, comment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[nodeID]
	if !ok {
		return kifuerr.New(kifuerr.UnknownNode, "node %v not found", nodeID)
	}
	n.Comment = comment
	return nil
}

// CurrentPositionSFEN returns the cached position at CurrentNodeID.
func (t *Tree) CurrentPositionSFEN() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.nodes[t.game.CurrentNodeID].PositionSFEN
}
