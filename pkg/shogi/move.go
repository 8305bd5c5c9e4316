package shogi

import (
	"fmt"
	"strings"
)

// Move is a single USI move: either a board move (From -> To, optionally
// promoting) or a drop (Piece from hand onto To).
type Move struct {
	Drop    bool
	Piece   Kind // drop piece kind
	From    Square
	To      Square
	Promote bool
}

func (m Move) String() string {
	if m.Drop {
		return fmt.Sprintf("%c*%v", m.Piece.Letter(), m.To)
	}
	s := fmt.Sprintf("%v%v", m.From, m.To)
	if m.Promote {
		s += "+"
	}
	return s
}

// ParseUSI parses a USI move token, e.g. "7g7f", "8h2b+", "P*5f". Equality
// of two move strings for dedup purposes is exact string match after
// normalization (lowercase, trimmed) -- the promotion suffix is part of the
// move, done by the caller (pkg/tree) rather than here, since this function
// only needs to accept the canonical form.
func ParseUSI(move string) (Move, error) {
	s := strings.TrimSpace(move)
	if len(s) < 4 {
		return Move{}, fmt.Errorf("invalid move %q", move)
	}

	if s[1] == '*' {
		k, ok := ParseKind(s[0])
		if !ok {
			return Move{}, fmt.Errorf("invalid drop piece in %q", move)
		}
		to, err := ParseSquareUSI(s[2:4])
		if err != nil {
			return Move{}, fmt.Errorf("invalid drop square in %q: %w", move, err)
		}
		if len(s) != 4 {
			return Move{}, fmt.Errorf("invalid drop move %q", move)
		}
		return Move{Drop: true, Piece: k, To: to}, nil
	}

	promote := false
	body := s
	if strings.HasSuffix(s, "+") {
		promote = true
		body = s[:len(s)-1]
	}
	if len(body) != 4 {
		return Move{}, fmt.Errorf("invalid move %q", move)
	}

	from, err := ParseSquareUSI(body[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid from square in %q: %w", move, err)
	}
	to, err := ParseSquareUSI(body[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid to square in %q: %w", move, err)
	}
	return Move{From: from, To: to, Promote: promote}, nil
}

// NormalizeUSI lowercases and trims a move string for dedup comparison, as
// required by the design's play_move equality rule. The promotion suffix
// '+' is part of the move and is left intact.
func NormalizeUSI(move string) string {
	return strings.ToLower(strings.TrimSpace(move))
}

// promotionZone returns the rank range (inclusive) that counts as the
// opponent's camp for a color, i.e. where a board move may promote.
func promotionZone(c Color) (int, int) {
	if c == Black {
		return 1, 3
	}
	return 7, 9
}

// CanPromoteAt reports whether a move starting or ending in the color's
// promotion zone is eligible to promote.
func CanPromoteAt(c Color, from, to Square) bool {
	lo, hi := promotionZone(c)
	in := func(sq Square) bool { return sq.Rank >= lo && sq.Rank <= hi }
	return in(from) || in(to)
}
