package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is a pipeline stage
type State string

const (
	StateIdle          State = "idle"
	StateInputSelected State = "input_selected"
	StateTranscribing  State = "transcribing"
	StateExtracting    State = "extracting"
	StatePresenting    State = "presenting"
	StateError         State = "error"
)

// Event drives a transition
type Event string

const (
	EventSelectInput Event = "select_input"
	EventStart       Event = "start"
	EventTranscribed Event = "transcribed"
	EventExtracted   Event = "extracted"
	EventFail        Event = "fail"
	EventReset       Event = "reset"
)

var (
	// ErrInvalidTransition is returned for an event the current state does not accept
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrBusy is returned when a run is requested while one is in flight
	ErrBusy = errors.New("pipeline is busy")
)

var transitions = map[State]map[Event]State{
	StateIdle: {
		EventSelectInput: StateInputSelected,
	},
	StateInputSelected: {
		EventSelectInput: StateInputSelected,
		EventStart:       StateTranscribing,
		EventReset:       StateIdle,
	},
	StateTranscribing: {
		EventTranscribed: StateExtracting,
		EventFail:        StateError,
	},
	StateExtracting: {
		EventExtracted: StatePresenting,
		EventFail:      StateError,
	},
	StatePresenting: {
		EventSelectInput: StateInputSelected,
		EventReset:       StateIdle,
	},
	StateError: {
		EventSelectInput: StateInputSelected,
		EventReset:       StateIdle,
	},
}

// Transition records one state change
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event Event     `json:"event"`
	At    time.Time `json:"at"`
}

// Machine is the per-session pipeline state. It is safe for concurrent use.
type Machine struct {
	state   State
	history []Transition
	lastErr error
	mu      sync.RWMutex
}

// NewMachine creates a machine in the idle state
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Busy reports whether a run is in flight
func (m *Machine) Busy() bool {
	s := m.State()
	return s == StateTranscribing || s == StateExtracting
}

// Fire applies event and returns the new state
func (m *Machine) Fire(event Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fire(event)
}

func (m *Machine) fire(event Event) (State, error) {
	next, ok := transitions[m.state][event]
	if !ok {
		if m.state == StateTranscribing || m.state == StateExtracting {
			return m.state, fmt.Errorf("%w: %s", ErrBusy, m.state)
		}
		return m.state, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, m.state)
	}

	m.history = append(m.history, Transition{From: m.state, To: next, Event: event, At: time.Now()})
	m.state = next
	if next != StateError {
		m.lastErr = nil
	}
	return next, nil
}

// Begin selects input and starts a run in one step. It fails with ErrBusy
// while another run is in flight.
func (m *Machine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.fire(EventSelectInput); err != nil {
		return err
	}
	_, err := m.fire(EventStart)
	return err
}

// Fail moves an in-flight run to the error state and records the cause
func (m *Machine) Fail(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.fire(EventFail); err == nil {
		m.lastErr = cause
	}
}

// Err returns the cause of the last failure while in the error state
func (m *Machine) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// History returns a copy of the recorded transitions
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
