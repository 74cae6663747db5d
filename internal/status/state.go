// Package status tracks the connection lifecycle of the chat transport.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatline/internal/bus"
)

// State represents a transport runtime state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Syncing      State = "SYNCING"
	Ready        State = "READY"
	Reconnecting State = "RECONNECTING"
	Stopped      State = "STOPPED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Connecting, Stopped, Error},
	AuthRequired: {Connecting, Stopped, Error},
	Connecting:   {Syncing, Ready, AuthRequired, Reconnecting, Stopped, Error},
	Syncing:      {Ready, Reconnecting, AuthRequired, Stopped, Error},
	Ready:        {Syncing, Reconnecting, AuthRequired, Stopped, Error},
	Reconnecting: {Connecting, AuthRequired, Stopped, Error},
	Stopped:      {Booting, Connecting},
	Error:        {Booting, Stopped},
}

// Machine tracks and enforces transport runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.SessionStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// Settle moves to the given state if the move is allowed. Being in it already counts as
// success. A nil machine accepts everything.
func (m *Machine) Settle(to State) bool {
	if m == nil {
		return true
	}
	if m.Current() == to {
		return true
	}
	return m.Transition(to) == nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
