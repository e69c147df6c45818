package models

// Trigger is anything that may move a session between states: a command
// issued by a caller or a signal reported by the messaging backend.
type Trigger string

const (
	TriggerConnectionRequested Trigger = "connection_requested"
	TriggerArtifactIssued      Trigger = "auth_artifact_issued"
	TriggerAuthAccepted        Trigger = "auth_accepted"
	TriggerReady               Trigger = "ready"
	TriggerAuthRejected        Trigger = "auth_rejected"
	TriggerExternalDisconnect  Trigger = "external_disconnect"
	TriggerDisconnectCommand   Trigger = "disconnect_command"
)

type transition struct {
	from []State
	to   State
}

var transitions = map[Trigger]transition{
	TriggerConnectionRequested: {from: []State{StateCreated}, to: StateInitializing},
	TriggerArtifactIssued:      {from: []State{StateInitializing, StateDisconnected, StateAuthFailed}, to: StateAuthPending},
	TriggerAuthAccepted:        {from: []State{StateAuthPending}, to: StateAuthenticated},
	TriggerReady:               {from: []State{StateAuthenticated}, to: StateConnected},
	TriggerAuthRejected:        {from: []State{StateAuthPending}, to: StateAuthFailed},
	TriggerExternalDisconnect:  {from: []State{StateAuthenticated, StateConnected, StateAuthPending}, to: StateDisconnected},
	TriggerDisconnectCommand: {
		from: []State{StateCreated, StateInitializing, StateAuthPending, StateAuthenticated, StateConnected},
		to:   StateDisconnected,
	},
}

// Next returns the state reached by applying t in state from. ok is false
// when the table has no entry for the pair; callers must then leave the
// session untouched.
func Next(from State, t Trigger) (to State, ok bool) {
	tr, known := transitions[t]
	if !known {
		return from, false
	}
	for _, s := range tr.from {
		if s == from {
			return tr.to, true
		}
	}
	return from, false
}

// IsKnown reports whether t appears in the transition table.
func (t Trigger) IsKnown() bool {
	_, ok := transitions[t]
	return ok
}

// EventTypeFor returns the event type emitted when t is accepted.
func EventTypeFor(t Trigger) EventType {
	if t == TriggerArtifactIssued {
		return EventAuthArtifactIssued
	}
	return EventStateChanged
}
