package chessdto

// NewGameRequest asks for a pairing by type name ("no limit", "slow",
// "fast") and, for timed types, a named period such as "1d" or "5m".
type NewGameRequest struct {
	Type   string `json:"type"`
	Period string `json:"limit"`
}

// NewGameResponse carries the requester's game token; Info is present only
// when the request paired immediately.
type NewGameResponse struct {
	Game   string       `json:"game"`
	Invite string       `json:"invite,omitempty"`
	Info   *SessionInfo `json:"info,omitempty"`
}

// MoveRequest carries a single move string "<from>-<to>".
type MoveRequest struct {
	Move string `json:"move"`
}

// ChatRequest relays a chat line into the session's event stream.
type ChatRequest struct {
	Text string `json:"text"`
}

// PoolEntry is one browsable, not yet accepted matchmaking ticket.
type PoolEntry struct {
	ID      string `json:"id"`
	Created string `json:"date_created"`
	User    string `json:"user,omitempty"`
	Type    string `json:"type"`
	Limit   int    `json:"limit,omitempty"`
}