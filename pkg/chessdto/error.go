package chessdto

// DomainError is a stable user-facing failure translated from an engine,
// session or matchmaking error. Code doubles as the message-catalog key.
type DomainError struct {
	Code    string
	Message string
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "game service error"
}
