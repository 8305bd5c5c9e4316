package shogi

// Occupant is a piece with its owning color sitting on a square.
type Occupant struct {
	Color Color
	Piece Piece
}

// Position is a mutable 9x9 shogi board plus both hands, the side to move
// and the ply (move) counter. Use Fork to derive a new Position before
// mutating it, mirroring board.Board.Fork in the teacher.
type Position struct {
	board [9][9]*Occupant // [file-1][rank-1]
	hands [2]map[Kind]int // indexed by Color
	turn  Color
	ply   int
}

// NewEmptyPosition returns an empty board with empty hands.
func NewEmptyPosition(turn Color, ply int) *Position {
	return &Position{
		hands: [2]map[Kind]int{{}, {}},
		turn:  turn,
		ply:   ply,
	}
}

// Square returns the occupant at the given square, if any.
func (p *Position) Square(sq Square) (Occupant, bool) {
	if !sq.IsValid() {
		return Occupant{}, false
	}
	o := p.board[sq.File-1][sq.Rank-1]
	if o == nil {
		return Occupant{}, false
	}
	return *o, true
}

// SetSquare places (or clears, with a nil piece) an occupant.
func (p *Position) SetSquare(sq Square, o *Occupant) {
	p.board[sq.File-1][sq.Rank-1] = o
}

// Hand returns the hand counts for a color. Callers must not mutate the
// returned map directly; use AddToHand/RemoveFromHand.
func (p *Position) Hand(c Color) map[Kind]int {
	return p.hands[c]
}

func (p *Position) AddToHand(c Color, k Kind) {
	p.hands[c][k]++
}

// RemoveFromHand returns false if the hand has none of the given kind.
func (p *Position) RemoveFromHand(c Color, k Kind) bool {
	if p.hands[c][k] <= 0 {
		return false
	}
	p.hands[c][k]--
	if p.hands[c][k] == 0 {
		delete(p.hands[c], k)
	}
	return true
}

func (p *Position) Turn() Color {
	return p.turn
}

func (p *Position) Ply() int {
	return p.ply
}

// Fork returns a deep copy of the position.
func (p *Position) Fork() *Position {
	cp := &Position{
		hands: [2]map[Kind]int{{}, {}},
		turn:  p.turn,
		ply:   p.ply,
	}
	for f := 0; f < 9; f++ {
		for r := 0; r < 9; r++ {
			if o := p.board[f][r]; o != nil {
				occ := *o
				cp.board[f][r] = &occ
			}
		}
	}
	for c := range p.hands {
		for k, n := range p.hands[c] {
			cp.hands[c][k] = n
		}
	}
	return cp
}
