package ycmd

// Status is the lifecycle state of a Server.
type Status int

const (
	// StatusNull: no backend process. The initial and terminal state.
	StatusNull Status = iota
	// StatusStarting: a launch is in flight.
	StatusStarting
	// StatusRunning: the backend process is up and accepting requests.
	StatusRunning
	// StatusStopping: a shutdown has been requested; the process may still
	// be exiting.
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusNull:
		return "null"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// validFrom lists the expected predecessors for each transition target.
// Transitions to null are always allowed (self-healing on dead processes).
func validFrom(to Status) []Status {
	switch to {
	case StatusStarting:
		return []Status{StatusNull}
	case StatusRunning:
		return []Status{StatusNull, StatusStarting}
	case StatusStopping:
		return []Status{StatusRunning, StatusStopping}
	default:
		return nil
	}
}
