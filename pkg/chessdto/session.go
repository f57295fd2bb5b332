package chessdto

import "time"

// FigureView is one visible figure on a fog-of-war board render.
type FigureView struct {
	Kind     string   `json:"kind"`
	Color    string   `json:"color"`
	Position string   `json:"position"`
	Moves    []string `json:"moves"`
}

// CutView is one captured figure.
type CutView struct {
	Kind  string `json:"kind"`
	Color string `json:"color"`
}

// BoardView maps visible coordinates to their occupants. A key present
// with a nil value is a visible empty cell; absent keys are fogged.
type BoardView struct {
	Cells map[string]*FigureView `json:"cells"`
	Cuts  []CutView              `json:"cuts"`
}

// SessionInfo is the info response for a started game. TimeLeft values are
// seconds; nil means unbounded (no-limit game) or no longer relevant.
type SessionInfo struct {
	Board         *BoardView `json:"board"`
	TimeLeft      *float64   `json:"time_left"`
	EnemyTimeLeft *float64   `json:"enemy_time_left"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	NextTurn      string     `json:"next_turn"`
	Color         string     `json:"color"`
	Opponent      string     `json:"opponent,omitempty"`
	Winner        string     `json:"winner,omitempty"`
	DrawRequest   bool       `json:"draw_request,omitempty"`
}

// GameStateResponse is the polymorphic answer for a game token: a
// waiting ticket or a live session, never both.
type GameStateResponse struct {
	Waiting *WaitingInfo `json:"waiting,omitempty"`
	Info    *SessionInfo `json:"info,omitempty"`
}

// WaitingInfo is returned while a matchmaking ticket has not been paired.
type WaitingInfo struct {
	Type   string `json:"type"`
	Limit  int    `json:"limit,omitempty"`
	Invite string `json:"invite,omitempty"`
}

// MoveView is one entry of the move list.
type MoveView struct {
	Number  int       `json:"number"`
	Figure  string    `json:"figure"`
	Move    string    `json:"move"`
	Color   string    `json:"color"`
	Seconds float64   `json:"seconds"`
	Played  time.Time `json:"played_at"`
}

// Notation renders the short display form, e.g. "Ng1-f3" or "e2-e4";
// castles and pawn moves carry no figure letter.
func (m MoveView) Notation() string {
	if m.Move == "0-0" || m.Move == "0-0-0" || m.Figure == "p" || m.Figure == "P" {
		return m.Move
	}
	upper := m.Figure
	if len(upper) == 1 && upper[0] >= 'a' {
		upper = string(upper[0] &^ 0x20)
	}
	return upper + m.Move
}
