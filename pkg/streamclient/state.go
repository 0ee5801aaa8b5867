package streamclient

// State is the connection state of a Client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateUnhealthy    State = "unhealthy"
	StateFailed       State = "failed"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether the client stopped reconnecting.
func (s State) IsTerminal() bool {
	return s == StateFailed
}
