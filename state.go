package hxcaptcha

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of one mounted widget.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateStarted
	StateSolved
	StateFailed
	StateReset
	StateDestroyed
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateLoading:       "loading",
	StateReady:         "ready",
	StateStarted:       "started",
	StateSolved:        "solved",
	StateFailed:        "failed",
	StateReset:         "reset",
	StateDestroyed:     "destroyed",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Live reports whether a widget instance exists in this state and can emit
// events.
func (s State) Live() bool {
	switch s {
	case StateReady, StateStarted, StateSolved, StateFailed, StateReset:
		return true
	}
	return false
}

// eventTarget returns the state an event moves to, or false if the event
// is not accepted in s.
func eventTarget(s State, k EventKind) (State, bool) {
	if !s.Live() {
		return s, false
	}
	switch k {
	case EventStarted:
		// A solved widget has to be reset before it can start again.
		if s == StateSolved {
			return s, false
		}
		return StateStarted, true
	case EventSolved:
		return StateSolved, true
	case EventFailed:
		return StateFailed, true
	case EventReset:
		return StateReset, true
	}
	return s, false
}

// Machine tracks widget state. It is safe for concurrent use.
type Machine struct {
	mu    sync.RWMutex
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Apply moves the machine according to a widget event.
func (m *Machine) Apply(k EventKind) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDestroyed {
		return m.state, ErrUnmounted
	}
	next, ok := eventTarget(m.state, k)
	if !ok {
		return m.state, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, k, m.state)
	}
	m.state = next
	return next, nil
}

// set forces a lifecycle state (loading, ready, failed, destroyed) driven
// by the mount controller rather than by widget events.
func (m *Machine) set(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
