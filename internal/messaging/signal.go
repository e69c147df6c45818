package messaging

import "chatpulse/internal/session/models"

// SignalKind enumerates everything a backend may report about a connection.
type SignalKind string

const (
	SignalArtifactIssued SignalKind = "artifact_issued"
	SignalAuthAccepted   SignalKind = "auth_accepted"
	SignalReady          SignalKind = "ready"
	SignalAuthRejected   SignalKind = "auth_rejected"
	SignalLoggedOut      SignalKind = "logged_out"
	SignalMessage        SignalKind = "message"
	SignalError          SignalKind = "error"
)

// Signal is a single event reported by a backend. Only the field matching
// Kind is meaningful.
type Signal struct {
	Kind      SignalKind
	Artifact  string
	AccountID string
	Message   *models.Message
	Reason    string
}

var signalTriggers = map[SignalKind]models.Trigger{
	SignalArtifactIssued: models.TriggerArtifactIssued,
	SignalAuthAccepted:   models.TriggerAuthAccepted,
	SignalReady:          models.TriggerReady,
	SignalAuthRejected:   models.TriggerAuthRejected,
	SignalLoggedOut:      models.TriggerExternalDisconnect,
}

// Trigger maps the signal to a lifecycle trigger. ok is false for signals
// that never move the state machine (messages and errors).
func (s Signal) Trigger() (models.Trigger, bool) {
	t, ok := signalTriggers[s.Kind]
	return t, ok
}

// RemoteState is the coarse connection state a StatusQuerier reports.
type RemoteState string

const (
	RemoteAwaitingAuth RemoteState = "awaiting_auth"
	RemoteAuthorized   RemoteState = "authorized"
	RemoteConnected    RemoteState = "connected"
	RemoteLoggedOut    RemoteState = "logged_out"
	RemoteAuthRejected RemoteState = "auth_rejected"
	RemoteUnknown      RemoteState = "unknown"
)

// RemoteStatus is the answer to a QueryStatus call.
type RemoteStatus struct {
	State     RemoteState
	Artifact  string
	AccountID string
}

// Signals derives the signals that move a session in local state toward
// the reported remote state. It returns nil when the two already agree or
// the remote state carries no actionable information.
func (st RemoteStatus) Signals(local models.State) []Signal {
	switch st.State {
	case RemoteAwaitingAuth:
		if st.Artifact == "" {
			return nil
		}
		switch local {
		case models.StateInitializing, models.StateAuthPending, models.StateDisconnected, models.StateAuthFailed:
			return []Signal{{Kind: SignalArtifactIssued, Artifact: st.Artifact}}
		}
	case RemoteAuthorized:
		if local == models.StateAuthPending {
			return []Signal{{Kind: SignalAuthAccepted, AccountID: st.AccountID}}
		}
	case RemoteConnected:
		switch local {
		case models.StateAuthPending:
			return []Signal{
				{Kind: SignalAuthAccepted, AccountID: st.AccountID},
				{Kind: SignalReady},
			}
		case models.StateAuthenticated:
			return []Signal{{Kind: SignalReady, AccountID: st.AccountID}}
		}
	case RemoteLoggedOut:
		switch local {
		case models.StateAuthPending, models.StateAuthenticated, models.StateConnected:
			return []Signal{{Kind: SignalLoggedOut, Reason: "logged out"}}
		}
	case RemoteAuthRejected:
		if local == models.StateAuthPending {
			return []Signal{{Kind: SignalAuthRejected, Reason: "authentication rejected"}}
		}
	}
	return nil
}
