package session

import (
	"time"

	"github.com/park285/darkchess-server/internal/engine"
)

// GameType selects the clock discipline of a session.
type GameType string

const (
	// TypeNoLimit plays without any clock.
	TypeNoLimit GameType = "no limit"
	// TypeSlow gives each player a fixed allowance per move, reset
	// after every move. Meant for correspondence-style games.
	TypeSlow GameType = "slow"
	// TypeFast gives each player a cumulative bank for the whole game.
	TypeFast GameType = "fast"
)

var slowPeriods = map[string]int{
	"1d":  1 * 24 * 3600,
	"3d":  3 * 24 * 3600,
	"7d":  7 * 24 * 3600,
	"15d": 15 * 24 * 3600,
	"30d": 30 * 24 * 3600,
}

var fastPeriods = map[string]int{
	"5m":  5 * 60,
	"10m": 10 * 60,
	"30m": 30 * 60,
	"1h":  3600,
	"3h":  3 * 3600,
}

// PeriodSeconds resolves a named period ("3d", "5m") for a game type.
// No-limit games take no period at all.
func PeriodSeconds(gt GameType, period string) (int, error) {
	switch gt {
	case TypeNoLimit:
		if period == "" {
			return 0, nil
		}
		return 0, ErrBadPeriod
	case TypeSlow:
		if sec, ok := slowPeriods[period]; ok {
			return sec, nil
		}
	case TypeFast:
		if sec, ok := fastPeriods[period]; ok {
			return sec, nil
		}
	}
	return 0, ErrBadPeriod
}

// PeriodNames lists the named periods of a type in ascending order.
func PeriodNames(gt GameType) []string {
	switch gt {
	case TypeSlow:
		return []string{"1d", "3d", "7d", "15d", "30d"}
	case TypeFast:
		return []string{"5m", "10m", "30m", "1h", "3h"}
	default:
		return []string{""}
	}
}

// ParseGameType validates a client-supplied type name.
func ParseGameType(s string) (GameType, bool) {
	switch GameType(s) {
	case TypeNoLimit, TypeSlow, TypeFast:
		return GameType(s), true
	}
	return "", false
}

// PlayerSlot binds one side of a session to its access token.
type PlayerSlot struct {
	Token string `json:"token"`
	User  string `json:"user,omitempty"`
}

// MoveRecord is one accepted move as persisted with the session.
type MoveRecord struct {
	Figure  string       `json:"figure"`
	Move    string       `json:"move"`
	Color   engine.Color `json:"color"`
	Seconds float64      `json:"seconds"`
	Played  time.Time    `json:"played_at"`
}

// Session is the persisted state of one game, stored as a JSON blob
// under a single redis key so WATCH covers the whole record.
type Session struct {
	ID         string                         `json:"id"`
	Type       GameType                       `json:"type"`
	PeriodName string                         `json:"period,omitempty"`
	PeriodSec  int                            `json:"period_sec,omitempty"`
	Board      string                         `json:"board"`
	NextTurn   engine.Color                   `json:"next_turn"`
	Players    map[engine.Color]PlayerSlot    `json:"players"`
	Moves      []MoveRecord                   `json:"moves"`
	StartedAt  time.Time                      `json:"started_at"`
	LastMoveAt time.Time                      `json:"last_move_at"`
	EndedAt    *time.Time                     `json:"ended_at,omitempty"`
	Winner     engine.Color                   `json:"winner,omitempty"`
	Reason     engine.EndReason               `json:"reason,omitempty"`
}

// Ended reports whether the game reached a final state.
func (s *Session) Ended() bool { return s.EndedAt != nil }

// ColorOf maps a token back to its side.
func (s *Session) ColorOf(token string) (engine.Color, bool) {
	for c, p := range s.Players {
		if p.Token == token {
			return c, true
		}
	}
	return "", false
}

// TokenOf returns the access token of the given side.
func (s *Session) TokenOf(color engine.Color) string {
	return s.Players[color].Token
}

// Game reconstructs a playable engine game from the stored state.
// Castling rights are derived from the recorded move history.
func (s *Session) Game() (*engine.Game, error) {
	g, err := engine.LoadGame(s.Board, s.NextTurn)
	if err != nil {
		return nil, err
	}
	for _, c := range []engine.Color{engine.White, engine.Black} {
		g.Board.ReplayHistory(c, s.notations(c))
	}
	return g, nil
}

func (s *Session) notations(color engine.Color) []string {
	var out []string
	for _, m := range s.Moves {
		if m.Color == color {
			out = append(out, m.Move)
		}
	}
	return out
}

// lastActivity is the reference instant for live clock math.
func (s *Session) lastActivity() time.Time {
	if !s.LastMoveAt.IsZero() {
		return s.LastMoveAt
	}
	return s.StartedAt
}

// TimeLeft computes remaining seconds for a side at the given instant.
// Nil means the clock does not apply. Slow games reset the allowance
// after every move; fast games spend from a cumulative bank.
func (s *Session) TimeLeft(color engine.Color, now time.Time) *float64 {
	switch s.Type {
	case TypeSlow:
		left := float64(s.PeriodSec)
		if !s.Ended() && color == s.NextTurn {
			left -= now.Sub(s.lastActivity()).Seconds()
		}
		if left < 0 {
			left = 0
		}
		return &left
	case TypeFast:
		left := float64(s.PeriodSec)
		for _, m := range s.Moves {
			if m.Color == color {
				left -= m.Seconds
			}
		}
		if !s.Ended() && color == s.NextTurn {
			left -= now.Sub(s.lastActivity()).Seconds()
		}
		if left < 0 {
			left = 0
		}
		return &left
	default:
		return nil
	}
}

// TimedOut reports whether the side to move has exhausted its clock.
func (s *Session) TimedOut(now time.Time) bool {
	if s.Ended() || s.Type == TypeNoLimit {
		return false
	}
	left := s.TimeLeft(s.NextTurn, now)
	return left != nil && *left <= 0
}
