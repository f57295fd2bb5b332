package chessdto

// Signal classifies an event pushed over the broker/socket path.
type Signal string

const (
	SignalStart       Signal = "start"
	SignalMove        Signal = "move"
	SignalWin         Signal = "win"
	SignalLose        Signal = "lose"
	SignalDraw        Signal = "draw"
	SignalDrawRequest Signal = "draw-request"
	SignalChat        Signal = "chat"
)

// Event is the payload published on the broker channel and relayed to
// websocket clients. An empty tag list means broadcast.
type Event struct {
	Message any      `json:"message"`
	Signal  Signal   `json:"signal"`
	Tags    []string `json:"tags"`
}
