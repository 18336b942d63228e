package session

// State represents the current lifecycle state of a session
type State int

const (
	// StateRequested indicates the session was granted but the device
	// loop has not started
	StateRequested State = iota
	// StateActive indicates the session is running and serving frames
	StateActive
	// StateEnding indicates End was called and shutdown is in progress
	StateEnding
	// StateEnded indicates the session shut down cleanly
	StateEnded
	// StateLost indicates the device disappeared out from under the
	// session
	StateLost
)

// String returns a string representation of the session state
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	case StateLost:
		return "lost"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions can leave the state.
func (s State) terminal() bool {
	return s == StateEnded || s == StateLost
}
