package session

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle        State = iota // StateIdle is a session that has not connected yet.
	StateConnecting               // StateConnecting is dialing the endpoint.
	StateActive                   // StateActive is connected with the heartbeat running.
	StateTerminating              // StateTerminating is tearing down the heartbeat and connection.
	StateClosed                   // StateClosed is final.
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
