package session

type sessionErr string

func (e sessionErr) Error() string { return string(e) }

const (
	// ErrUnknownToken means the token binds to no session or ticket.
	ErrUnknownToken = sessionErr("unknown game token")

	// ErrGameOver rejects mutations on an ended session.
	ErrGameOver = sessionErr("game is over")

	// ErrNoDrawOffer rejects accepting a draw nobody offered.
	ErrNoDrawOffer = sessionErr("no pending draw offer")

	// ErrBadPeriod rejects a period name unknown for the game type.
	ErrBadPeriod = sessionErr("unknown period for game type")
)
