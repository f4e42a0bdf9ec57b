package bridge

// State is the lifecycle state of a bridge
type State int32

const (
	// StateConnecting waits for the upstream connection. Client frames are queued.
	StateConnecting State = iota
	// StateActive relays frames in both directions
	StateActive
	// StateClosing closes the upstream and then the client
	StateClosing
	// StateClosed is terminal after a clean close
	StateClosed
	// StateFailed is terminal after the upstream could not be reached or broke
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
