package pipeline

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is a stage of the process lifecycle.
type State int

const (
	Initializing State = iota
	Running
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case Running:
		return "RUNNING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Terminated:
		return "TERMINATED"
	}
	return "UNKNOWN"
}

var transitions = map[State][]State{
	Initializing: {Running, Terminated},
	Running:      {ShuttingDown},
	ShuttingDown: {Terminated},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle tracks the current State.
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	history []State
}

// NewLifecycle returns a lifecycle in Initializing.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: Initializing, history: []State{Initializing}}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns every state entered, oldest first.
func (l *Lifecycle) History() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.history...)
}

// Transition moves to the next state.
func (l *Lifecycle) Transition(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !CanTransition(l.state, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", l.state, to)
	}
	l.state = to
	l.history = append(l.history, to)
	return nil
}
