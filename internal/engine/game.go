package engine

// MoveResult is the tagged outcome of an accepted move. Over is nil while
// the game continues; when set, Figure and Notation still describe the
// final move so the session layer can persist it.
type MoveResult struct {
	Figure   *Figure
	Notation string
	Over     *GameOver
}

// Game couples a Board with turn order. There is no check concept: the
// only terminal outcomes are a captured king and a side left without
// legal moves.
type Game struct {
	Board   *Board
	Current Color
}

// NewGame starts a game from the standard position, white to move.
func NewGame() *Game {
	return &Game{Board: NewBoard(), Current: White}
}

// LoadGame reconstructs a game from a serialized board state.
func LoadGame(state string, next Color) (*Game, error) {
	if !next.valid() {
		next = White
	}
	board, err := ParseBoard(state)
	if err != nil {
		return nil, err
	}
	return &Game{Board: board, Current: next}, nil
}

// ApplyMove validates ownership and turn order, then applies the move.
// A king moved onto its castling destination attempts to castle first and
// silently falls back to a normal move when castling is unavailable.
func (g *Game) ApplyMove(color Color, from, to Pos) (MoveResult, error) {
	if color != g.Current {
		return MoveResult{}, ErrWrongTurn
	}
	fig, err := g.Board.CellToFigure(from.X, from.Y)
	if err != nil {
		return MoveResult{}, err
	}
	if fig == nil {
		return MoveResult{}, ErrNotFound
	}
	if fig.Color != color {
		return MoveResult{}, ErrWrongFigure
	}
	if fig.Kind == King {
		if notation, ok := g.tryCastle(fig, to); ok {
			g.Current = g.Current.Invert()
			return MoveResult{Figure: fig, Notation: notation}, nil
		}
	}
	if !onBoard(to.X, to.Y) {
		return MoveResult{}, ErrOutOfBoard
	}
	if !fig.canReach(to) {
		return MoveResult{}, ErrWrongMove
	}
	notation := from.Coors() + "-" + to.Coors()
	over, err := g.Board.Move(fig, to.X, to.Y)
	if err != nil {
		return MoveResult{}, err
	}
	g.Current = g.Current.Invert()
	return MoveResult{Figure: fig, Notation: notation, Over: over}, nil
}

func (g *Game) tryCastle(king *Figure, to Pos) (string, bool) {
	home := 1
	if king.Color == Black {
		home = 8
	}
	if to.Y != home || (to.X != 7 && to.X != 3) {
		return "", false
	}
	short := to.X == 7
	rook := g.Board.CanCastle(king.Color, short)
	if rook == nil {
		return "", false
	}
	g.Board.Castle(king, rook)
	if short {
		return "0-0", true
	}
	return "0-0-0", true
}
