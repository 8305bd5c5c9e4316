package shogi

import (
	"fmt"
)

// Apply applies a USI move to a position and returns the resulting forked
// position, with the side to move flipped and the ply counter incremented.
// It performs only the bookkeeping checks needed to keep the board
// consistent (occupant exists, belongs to the side to move, promotion is
// only attempted where geometrically possible); it does not check or
// checkmate detection, since legality is the USI engine's and UI's
// responsibility, per the design. Any inconsistency is returned as a plain
// error; callers (pkg/tree) wrap it as kifuerr.InvalidMove.
func Apply(pos *Position, usi string) (*Position, error) {
	m, err := ParseUSI(usi)
	if err != nil {
		return nil, err
	}

	next := pos.Fork()
	turn := next.Turn()

	if m.Drop {
		if !m.Piece.Droppable() {
			return nil, fmt.Errorf("piece %v is not droppable", m.Piece.Letter())
		}
		if _, occupied := next.Square(m.To); occupied {
			return nil, fmt.Errorf("cannot drop onto occupied square %v", m.To)
		}
		if !next.RemoveFromHand(turn, m.Piece) {
			return nil, fmt.Errorf("no %v in hand to drop", m.Piece.Letter())
		}
		next.SetSquare(m.To, &Occupant{Color: turn, Piece: Piece{Kind: m.Piece}})
	} else {
		o, ok := next.Square(m.From)
		if !ok {
			return nil, fmt.Errorf("no piece at %v", m.From)
		}
		if o.Color != turn {
			return nil, fmt.Errorf("piece at %v does not belong to %v", m.From, turn)
		}

		if captured, ok := next.Square(m.To); ok {
			if captured.Color == turn {
				return nil, fmt.Errorf("cannot capture own piece at %v", m.To)
			}
			next.AddToHand(turn, captured.Piece.Demoted().Kind)
		}

		piece := o.Piece
		if m.Promote {
			if !piece.Kind.CanPromote() {
				return nil, fmt.Errorf("piece %v cannot promote", piece.Kind.Letter())
			}
			if !CanPromoteAt(turn, m.From, m.To) {
				return nil, fmt.Errorf("move %v does not cross into the promotion zone", m)
			}
			piece.Promoted = true
		}

		next.SetSquare(m.From, nil)
		next.SetSquare(m.To, &Occupant{Color: turn, Piece: piece})
	}

	next.turn = turn.Opponent()
	next.ply = pos.ply + 1
	return next, nil
}
