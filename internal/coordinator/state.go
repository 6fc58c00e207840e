package coordinator

// State is where a rule sits in its watch lifecycle.
type State int32

const (
	// StateDisabled means no watch is running or requested.
	StateDisabled State = iota

	// StateStarting means a start command was issued and has not returned.
	StateStarting

	// StateActive means the watcher accepted the rule and reported no error.
	StateActive

	// StateErrored means the rule is enabled but the watcher reported an error.
	StateErrored

	// StateStopping means a stop command was issued and has not returned.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateErrored:
		return "errored"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Enabled reports whether the state corresponds to enabled = true.
func (s State) Enabled() bool {
	return s == StateStarting || s == StateActive || s == StateErrored
}
