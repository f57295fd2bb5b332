package engine

// Figure is a live piece on a Board. Figures are owned exclusively by their
// board and are never shared between boards.
type Figure struct {
	Kind  Kind
	Color Color
	X     int
	Y     int

	board *Board
	moves []Pos // cached legal destinations, rebuilt by Board.update
}

// Pos returns the figure's current coordinate.
func (f *Figure) Pos() Pos { return Pos{X: f.X, Y: f.Y} }

// Symbol returns the serialization letter, uppercase for white.
func (f *Figure) Symbol() string {
	c := byte(f.Kind)
	if f.Color == White {
		c &^= 0x20
	}
	return string(c)
}

// Moves returns the cached legal destinations for the figure. The cache is
// recomputed after every board mutation, before it is read again.
func (f *Figure) Moves() []Pos { return f.moves }

func (f *Figure) canReach(to Pos) bool {
	for _, m := range f.moves {
		if m == to {
			return true
		}
	}
	return false
}

func (f *Figure) update() { f.moves = f.calcMoves() }

func (f *Figure) calcMoves() []Pos {
	switch f.Kind {
	case Pawn:
		return f.pawnMoves()
	case Rook:
		return f.lineMoves(rookDirs)
	case Bishop:
		return f.lineMoves(bishopDirs)
	case Queen:
		return f.lineMoves(queenDirs)
	case Knight:
		return f.stepMoves(knightJumps)
	case King:
		return f.kingMoves()
	}
	return nil
}

func (f *Figure) lineMoves(dirs []Pos) []Pos {
	var moves []Pos
	for _, d := range dirs {
		x, y := f.X, f.Y
		for {
			x += d.X
			y += d.Y
			if !onBoard(x, y) {
				break
			}
			other := f.board.at(x, y)
			if other != nil {
				if other.Color != f.Color {
					moves = append(moves, Pos{x, y})
				}
				break
			}
			moves = append(moves, Pos{x, y})
		}
	}
	return moves
}

func (f *Figure) stepMoves(offsets []Pos) []Pos {
	var moves []Pos
	for _, d := range offsets {
		x, y := f.X+d.X, f.Y+d.Y
		if !onBoard(x, y) {
			continue
		}
		if other := f.board.at(x, y); other != nil && other.Color == f.Color {
			continue
		}
		moves = append(moves, Pos{x, y})
	}
	return moves
}

func (f *Figure) pawnMoves() []Pos {
	dir, home := 1, 2
	if f.Color == Black {
		dir, home = -1, 7
	}
	var moves []Pos
	if onBoard(f.X, f.Y+dir) && f.board.at(f.X, f.Y+dir) == nil {
		moves = append(moves, Pos{f.X, f.Y + dir})
		if f.Y == home && f.board.at(f.X, f.Y+2*dir) == nil {
			moves = append(moves, Pos{f.X, f.Y + 2*dir})
		}
	}
	for _, dx := range []int{-1, 1} {
		x, y := f.X+dx, f.Y+dir
		if !onBoard(x, y) {
			continue
		}
		if other := f.board.at(x, y); other != nil && other.Color != f.Color {
			moves = append(moves, Pos{x, y})
		}
	}
	return moves
}

func (f *Figure) kingMoves() []Pos {
	moves := f.stepMoves(kingSteps)
	home := 1
	if f.Color == Black {
		home = 8
	}
	if f.board.CanCastle(f.Color, true) != nil {
		moves = append(moves, Pos{7, home})
	}
	if f.board.CanCastle(f.Color, false) != nil {
		moves = append(moves, Pos{3, home})
	}
	return moves
}

// VisibleCells is the fog-of-war view contributed by this figure. For most
// kinds it equals the legal destinations; a pawn also sees straight ahead
// even when blocked, and a king sees every adjacent square regardless of
// occupancy.
func (f *Figure) VisibleCells() []Pos {
	switch f.Kind {
	case King:
		return f.aura()
	case Pawn:
		return f.pawnVision()
	}
	return f.moves
}

func (f *Figure) aura() []Pos {
	var cells []Pos
	for _, d := range kingSteps {
		x, y := f.X+d.X, f.Y+d.Y
		if onBoard(x, y) {
			cells = append(cells, Pos{x, y})
		}
	}
	return cells
}

func (f *Figure) pawnVision() []Pos {
	dir, home := 1, 2
	if f.Color == Black {
		dir, home = -1, 7
	}
	cells := append([]Pos{}, f.moves...)
	appendNew := func(p Pos) {
		for _, c := range cells {
			if c == p {
				return
			}
		}
		cells = append(cells, p)
	}
	if onBoard(f.X, f.Y+dir) {
		appendNew(Pos{f.X, f.Y + dir})
		if f.Y == home && f.board.at(f.X, f.Y+dir) == nil {
			appendNew(Pos{f.X, f.Y + 2*dir})
		}
	}
	return cells
}
