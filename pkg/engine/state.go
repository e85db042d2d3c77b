package engine

// State is a state of the polling state machine.
type State int

// States of the polling state machine.
const (
	StateInit State = iota
	StateCheckConnection
	StateReset
	StateRun
	StateReconnecting
	StateConnected
	StateStopped
)

var stateNames = map[State]string{
	StateInit:            "Initializing",
	StateCheckConnection: "Checking connection",
	StateReset:           "Resetting control board",
	StateRun:             "Running",
	StateReconnecting:    "Control board disconnected",
	StateConnected:       "Control board connected",
	StateStopped:         "Stopped",
}

// String implements Stringer, it's the name shown to operators.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}
