package chat

// State is the orchestrator's position in the turn cycle.
type State int

const (
	// StateIdle: no conversation opened yet.
	StateIdle State = iota
	// StateReady: conversation open, accepting a message.
	StateReady
	// StateAwaitingResponse: one user message sent, generation in flight.
	StateAwaitingResponse
	// StateBlocked: the conversation could not be opened. Terminal.
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// AcceptsInput reports whether the visitor's input should be enabled.
func (s State) AcceptsInput() bool { return s == StateReady }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
