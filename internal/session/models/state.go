package models

// State is a tenant session's position in its lifecycle.
type State string

const (
	StateCreated       State = "created"
	StateInitializing  State = "initializing"
	StateAuthPending   State = "authPending"
	StateAuthenticated State = "authenticated"
	StateConnected     State = "connected"
	StateDisconnected  State = "disconnected"
	StateAuthFailed    State = "authFailed"
)

// AllStates lists every lifecycle state in lifecycle order.
var AllStates = []State{
	StateCreated,
	StateInitializing,
	StateAuthPending,
	StateAuthenticated,
	StateConnected,
	StateDisconnected,
	StateAuthFailed,
}

func (s State) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known lifecycle states.
func (s State) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends a session attempt. Terminal states are
// left only through a new auth artifact request.
func (s State) IsTerminal() bool {
	return s == StateDisconnected || s == StateAuthFailed
}

// AcceptsAuthRequest reports whether an auth artifact may be (re-)requested
// from s. Authenticated sessions must be disconnected first.
func (s State) AcceptsAuthRequest() bool {
	switch s {
	case StateCreated, StateInitializing, StateAuthPending, StateAuthFailed, StateDisconnected:
		return true
	default:
		return false
	}
}
