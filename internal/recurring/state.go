package recurring

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a registered task.
type State int

const (
	// StateScheduled means the task waits for its next tick.
	StateScheduled State = iota
	// StateRunning means an invocation is in flight.
	StateRunning
	// StateRetired means the task reported Retire. Terminal.
	StateRetired
	// StateCancelled means the host cancelled the task or the runner shut down. Terminal.
	StateCancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateRetired:
		return "retired"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further invocation can happen in this state.
func (s State) Terminal() bool {
	return s == StateRetired || s == StateCancelled
}

// Snapshot is a point-in-time view of one registered task.
type Snapshot struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	Ticks        uint64    `json:"ticks"`
	Faults       uint64    `json:"faults"`
	LastDecision *Decision `json:"last_decision,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastStart    time.Time `json:"last_start,omitzero"`
	LastFinish   time.Time `json:"last_finish,omitzero"`
	NextRun      time.Time `json:"next_run,omitzero"`
	Period       string    `json:"period"`
	Async        bool      `json:"async"`
}

// Event describes the outcome of one tick.
type Event struct {
	Runner   string        `json:"runner"`
	Task     string        `json:"task"`
	Tick     uint64        `json:"tick"`
	Decision Decision      `json:"decision"`
	State    State         `json:"state"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}
