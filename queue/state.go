package queue

import (
	"fmt"

	actionqueue "github.com/goliatone/go-actionqueue"
)

// State is the lifecycle state of a queue.
type State int

const (
	// Initial waits for the Creational action that justifies the queue.
	Initial State = iota
	Running
	// Blocking holds the queue for a single admitted blocking action.
	Blocking
	// Blocked is Blocking after another action arrived and was turned away.
	Blocked
	Terminating
	Terminated
	Disposed
)

var stateNames = map[State]string{
	Initial:     "initial",
	Running:     "running",
	Blocking:    "blocking",
	Blocked:     "blocked",
	Terminating: "terminating",
	Terminated:  "terminated",
	Disposed:    "disposed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// effect is the lifecycle follow-up attached to an admitted action.
type effect int

const (
	effectNone effect = iota
	effectCreation
	effectRelease
	effectTerminate
)

func (e effect) String() string {
	switch e {
	case effectCreation:
		return "creation"
	case effectRelease:
		return "release"
	case effectTerminate:
		return "terminate"
	default:
		return "none"
	}
}

// state is the tagged variant held under the queue lock.
// creationPending only has meaning while kind is Initial.
type state struct {
	kind            State
	creationPending bool
}

// transition computes the next state and the admission decision for an action
// carrying flags. Disposed is handled by the caller.
func transition(s state, flags actionqueue.Flags) (state, bool, effect) {
	switch s.kind {
	case Initial:
		if s.creationPending || !flags.Has(actionqueue.Creational) {
			return s, false, effectNone
		}
		return state{kind: Initial, creationPending: true}, true, effectCreation
	case Running:
		switch {
		case flags.Has(actionqueue.Terminating):
			return state{kind: Terminating}, true, effectTerminate
		case flags.Has(actionqueue.Blocking):
			return state{kind: Blocking}, true, effectRelease
		default:
			return s, true, effectNone
		}
	case Blocking:
		return state{kind: Blocked}, false, effectNone
	default:
		// Blocked, Terminating, Terminated
		return s, false, effectNone
	}
}

// settle applies the outcome of a lifecycle action. It reports whether the
// cleanup signal must fire.
func settle(s state, eff effect, success, terminating bool) (state, bool) {
	if s.kind == Disposed {
		return s, false
	}
	switch eff {
	case effectCreation:
		if !success || terminating {
			return state{kind: Terminated}, true
		}
		return state{kind: Running}, false
	case effectRelease:
		if s.kind == Blocking || s.kind == Blocked {
			return state{kind: Running}, false
		}
	case effectTerminate:
		if success {
			return state{kind: Terminated}, true
		}
		if s.kind == Terminating {
			return state{kind: Running}, false
		}
	}
	return s, false
}
