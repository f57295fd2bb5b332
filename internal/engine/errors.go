package engine

type ruleErr string

func (e ruleErr) Error() string { return string(e) }

// Rule violations raised by the engine. The session layer translates them
// into stable user-facing messages; none of them mutate board state.
var (
	ErrOutOfBoard     = ruleErr("coordinates are out of board")
	ErrCellOccupied   = ruleErr("you cannot capture your own figure")
	ErrWrongMove      = ruleErr("wrong move")
	ErrWrongFigure    = ruleErr("you can move only your figures")
	ErrWrongTurn      = ruleErr("it is not your turn")
	ErrNotFound       = ruleErr("figure not found")
	ErrMalformedState = ruleErr("malformed board state")
)
