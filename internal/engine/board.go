package engine

import "strings"

// Captured records one taken figure, in capture order.
type Captured struct {
	Kind  Kind
	Color Color
}

// MoveRec is one entry of the board's internal move log.
type MoveRec struct {
	Figure *Figure
	From   Pos
	To     Pos
}

type castleRights struct {
	kingMoved  bool
	rookAMoved bool
	rookHMoved bool
}

// Board is an 8x8 position space holding all live figures, the capture
// list and per-color castling rights.
type Board struct {
	figures []*Figure
	cuts    []Captured
	log     []MoveRec
	rights  map[Color]*castleRights
}

func newEmptyBoard() *Board {
	return &Board{
		rights: map[Color]*castleRights{
			White: {},
			Black: {},
		},
	}
}

// NewBoard sets up the standard 16+16 starting position.
func NewBoard() *Board {
	b := newEmptyBoard()
	for _, color := range []Color{White, Black} {
		pawnRank, homeRank := 2, 1
		if color == Black {
			pawnRank, homeRank = 7, 8
		}
		for x := 1; x <= 8; x++ {
			b.place(Pawn, color, x, pawnRank)
		}
		for _, x := range []int{1, 8} {
			b.place(Rook, color, x, homeRank)
		}
		for _, x := range []int{2, 7} {
			b.place(Knight, color, x, homeRank)
		}
		for _, x := range []int{3, 6} {
			b.place(Bishop, color, x, homeRank)
		}
		b.place(Queen, color, 4, homeRank)
		b.place(King, color, 5, homeRank)
	}
	b.update()
	return b
}

// ParseBoard reconstructs a board from its compact serialized form, e.g.
// "Ke1,ke8,Ra1,qd8". Uppercase letters are white. Castling rights are not
// restored here; callers with a persisted move log use ReplayHistory.
func ParseBoard(state string) (*Board, error) {
	b := newEmptyBoard()
	kings := map[Color]bool{}
	for _, token := range strings.Split(state, ",") {
		token = strings.TrimSpace(token)
		if len(token) != 3 {
			return nil, ErrMalformedState
		}
		kind, ok := kindOf(token[0] | 0x20)
		if !ok {
			return nil, ErrMalformedState
		}
		color := Black
		if token[0] < 'a' {
			color = White
		}
		pos, err := ParseCoors(token[1:])
		if err != nil {
			return nil, ErrMalformedState
		}
		if b.at(pos.X, pos.Y) != nil {
			return nil, ErrMalformedState
		}
		if kind == King {
			if kings[color] {
				return nil, ErrMalformedState
			}
			kings[color] = true
		}
		b.place(kind, color, pos.X, pos.Y)
	}
	b.update()
	return b, nil
}

// String serializes the board in insertion order. Round trips preserve the
// set of figures, not their ordering.
func (b *Board) String() string {
	tokens := make([]string, 0, len(b.figures))
	for _, f := range b.figures {
		tokens = append(tokens, f.Symbol()+f.Pos().Coors())
	}
	return strings.Join(tokens, ",")
}

func (b *Board) place(kind Kind, color Color, x, y int) *Figure {
	f := &Figure{Kind: kind, Color: color, X: x, Y: y, board: b}
	b.figures = append(b.figures, f)
	return f
}

// Figures returns all live figures.
func (b *Board) Figures() []*Figure { return b.figures }

// Cuts returns captured figures in capture order.
func (b *Board) Cuts() []Captured { return b.cuts }

// Log returns the internal move log accumulated since construction.
func (b *Board) Log() []MoveRec { return b.log }

func (b *Board) at(x, y int) *Figure {
	for _, f := range b.figures {
		if f.X == x && f.Y == y {
			return f
		}
	}
	return nil
}

// CellToFigure returns the occupant of (x, y), or nil for an empty cell.
func (b *Board) CellToFigure(x, y int) (*Figure, error) {
	if !onBoard(x, y) {
		return nil, ErrOutOfBoard
	}
	return b.at(x, y), nil
}

func (b *Board) remove(fig *Figure) {
	for i, f := range b.figures {
		if f == fig {
			b.figures = append(b.figures[:i], b.figures[i+1:]...)
			return
		}
	}
}

func (b *Board) king(color Color) *Figure {
	for _, f := range b.figures {
		if f.Kind == King && f.Color == color {
			return f
		}
	}
	return nil
}

// Move relocates fig to (x, y), capturing any enemy occupant. Capturing the
// enemy king ends the game immediately without mutating the board; the
// session layer persists the final move from the returned outcome. After a
// completed move, a side left with zero legal moves on its upcoming turn
// yields a draw outcome.
func (b *Board) Move(fig *Figure, x, y int) (*GameOver, error) {
	target, err := b.CellToFigure(x, y)
	if err != nil {
		return nil, err
	}
	if target != nil {
		if target.Color == fig.Color {
			return nil, ErrCellOccupied
		}
		if target.Kind == King {
			return &GameOver{Winner: fig.Color, Reason: ReasonCheckmate}, nil
		}
		b.remove(target)
		b.cuts = append(b.cuts, Captured{Kind: target.Kind, Color: target.Color})
	}
	b.log = append(b.log, MoveRec{Figure: fig, From: fig.Pos(), To: Pos{x, y}})
	b.markMoved(fig)
	fig.X, fig.Y = x, y
	b.update()
	if !b.hasMoves(fig.Color.Invert()) {
		return &GameOver{Reason: ReasonDraw}, nil
	}
	return nil, nil
}

func (b *Board) markMoved(fig *Figure) {
	cr := b.rights[fig.Color]
	home := 1
	if fig.Color == Black {
		home = 8
	}
	switch {
	case fig.Kind == King:
		cr.kingMoved = true
	case fig.Kind == Rook && fig.Y == home && fig.X == 1:
		cr.rookAMoved = true
	case fig.Kind == Rook && fig.Y == home && fig.X == 8:
		cr.rookHMoved = true
	}
}

// CanCastle reports whether color may still castle on the given side,
// returning the involved rook. It requires an unmoved king on its home
// square, an unmoved rook on the corner and empty squares in between.
func (b *Board) CanCastle(color Color, short bool) *Figure {
	cr := b.rights[color]
	if cr.kingMoved {
		return nil
	}
	home := 1
	if color == Black {
		home = 8
	}
	king := b.king(color)
	if king == nil || king.X != 5 || king.Y != home {
		return nil
	}
	rookFile := 8
	between := []Pos{{6, home}, {7, home}}
	if !short {
		rookFile = 1
		between = []Pos{{2, home}, {3, home}, {4, home}}
	}
	if (short && cr.rookHMoved) || (!short && cr.rookAMoved) {
		return nil
	}
	rook := b.at(rookFile, home)
	if rook == nil || rook.Kind != Rook || rook.Color != color {
		return nil
	}
	for _, c := range between {
		if b.at(c.X, c.Y) != nil {
			return nil
		}
	}
	return rook
}

// Castle relocates king and rook without going through Move; capture logic
// never applies because the intervening squares are verified empty.
func (b *Board) Castle(king, rook *Figure) {
	if rook.X == 8 {
		king.X, rook.X = 7, 6
	} else {
		king.X, rook.X = 3, 4
	}
	b.rights[king.Color].kingMoved = true
	b.update()
}

// ReplayHistory restores castling rights on a reconstructed board from the
// persisted notations of one color. A freshly parsed board has no moved
// flags, so any recorded king move, castle, or move off a rook's home
// corner kills the corresponding right.
func (b *Board) ReplayHistory(color Color, notations []string) {
	cr := b.rights[color]
	home := byte('1')
	if color == Black {
		home = '8'
	}
	for _, n := range notations {
		if n == "0-0" || n == "0-0-0" {
			cr.kingMoved = true
			continue
		}
		if len(n) < 2 || n[1] != home {
			continue
		}
		switch n[0] {
		case 'e':
			cr.kingMoved = true
		case 'a':
			cr.rookAMoved = true
		case 'h':
			cr.rookHMoved = true
		}
	}
	// cached moves were computed with pristine rights at parse time;
	// the king may still hold stale castle destinations
	b.update()
}

func (b *Board) update() {
	for _, f := range b.figures {
		f.update()
	}
}

func (b *Board) hasMoves(color Color) bool {
	for _, f := range b.figures {
		if f.Color == color && len(f.moves) > 0 {
			return true
		}
	}
	return false
}

// VisibleCells is the union of cells color may see on a fog-of-war render:
// every cell its figures occupy plus every cell those figures can see.
func (b *Board) VisibleCells(color Color) []Pos {
	seen := map[Pos]bool{}
	var cells []Pos
	add := func(p Pos) {
		if !seen[p] {
			seen[p] = true
			cells = append(cells, p)
		}
	}
	for _, f := range b.figures {
		if f.Color != color {
			continue
		}
		add(f.Pos())
		for _, c := range f.VisibleCells() {
			add(c)
		}
	}
	return cells
}
