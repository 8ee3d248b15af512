package progress

// State is a connection lifecycle state of a Client.
type State int32

const (
	// StateIdle is the state before any connection attempt.
	StateIdle State = iota
	// StateConnecting is entered by New before it returns.
	StateConnecting
	// StateOpen means the websocket is established and heartbeats run.
	StateOpen
	// StateClosing means a client-initiated close handshake is in flight.
	StateClosing
	// StateClosed is terminal; the client is inert.
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateConnecting: "connecting",
	StateOpen:       "open",
	StateClosing:    "closing",
	StateClosed:     "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
