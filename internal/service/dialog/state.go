package dialog

import "time"

// State is the lifecycle stage of the sequencer.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAwaitingOption
	StateSuspended
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAwaitingOption:
		return "awaiting_option"
	case StateSuspended:
		return "suspended"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the sequencer for status endpoints.
type Status struct {
	State          State      `json:"state"`
	NodeID         int        `json:"nodeId,omitempty"`
	SuspendedUntil *time.Time `json:"suspendedUntil,omitempty"`
}

// runState is owned by a single run goroutine.
type runState struct {
	node      int
	active    string
	first     bool
	separated map[string]bool
}

func newRunState(start int) *runState {
	return &runState{
		node:      start,
		first:     true,
		separated: make(map[string]bool),
	}
}
