package conductor

import (
	"iotronic/store"
)

// Provisioning events.
const (
	EventRegister   = "register"   // first registration completed, config delivered
	EventConnect    = "connect"    // transport session established
	EventDisconnect = "disconnect" // transport session dropped unexpectedly
	EventOffline    = "offline"    // clean shutdown or invalidated session
)

type transitionKey struct {
	state string
	event string
}

type transition struct {
	next   string
	target string
}

var transitions = map[transitionKey]transition{
	{store.StatusRegistered, EventRegister}:  {store.StatusOffline, store.StatusOnline},
	{store.StatusOffline, EventConnect}:      {store.StatusOnline, ""},
	{store.StatusDisconnected, EventConnect}: {store.StatusOnline, ""},
	{store.StatusOnline, EventDisconnect}:    {store.StatusDisconnected, store.StatusOnline},
	{store.StatusOnline, EventOffline}:       {store.StatusOffline, ""},
	{store.StatusDisconnected, EventOffline}: {store.StatusOffline, ""},
}

// Machine is one board's copy of the provisioning state machine, seeded from
// the persisted status. Advancing it never touches the board row; the task
// handle persists the result.
type Machine struct {
	current string
	target  string
}

func NewMachine(initial string) *Machine {
	return &Machine{current: initial}
}

func (m *Machine) Current() string { return m.current }
func (m *Machine) Target() string  { return m.target }

// ProcessEvent advances the machine. An event invalid for the current state
// returns an error and leaves the machine unchanged.
func (m *Machine) ProcessEvent(boardUUID, event string) error {
	t, ok := transitions[transitionKey{m.current, event}]
	if !ok {
		return &InvalidStateError{BoardUUID: boardUUID, State: m.current, Event: event}
	}
	m.current = t.next
	m.target = t.target
	return nil
}
