package chessdto

import "time"

// GameTypeInfo describes one playable clock discipline.
type GameTypeInfo struct {
	Type   string   `json:"type"`
	Limits []string `json:"limits,omitempty"`
}

// GameTypesResponse lists the types and named periods the server accepts.
type GameTypesResponse struct {
	Types []GameTypeInfo `json:"types"`
}

// MoveResponse confirms an applied move together with the refreshed view.
type MoveResponse struct {
	Move string       `json:"move"`
	Info *SessionInfo `json:"info"`
}

// MovesResponse wraps the move list endpoint payload.
type MovesResponse struct {
	Moves []MoveView `json:"moves"`
}

// PoolListResponse wraps the browsable matchmaking pool.
type PoolListResponse struct {
	Pool []PoolEntry `json:"pool"`
}

// GameSummary is one finished game from the archive listing.
type GameSummary struct {
	SessionID string    `json:"session_id"`
	GameType  string    `json:"game_type"`
	Period    string    `json:"period,omitempty"`
	WhiteUser string    `json:"white_user,omitempty"`
	BlackUser string    `json:"black_user,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	MoveCount int       `json:"move_count"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// HistoryResponse wraps the archive listing payload.
type HistoryResponse struct {
	Games []GameSummary `json:"games"`
}
