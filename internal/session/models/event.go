package models

import "time"

// EventType classifies a Lifecycle Event for subscribers.
type EventType string

const (
	EventStateChanged       EventType = "stateChanged"
	EventAuthArtifactIssued EventType = "authArtifactIssued"
	EventMessageReceived    EventType = "messageReceived"
	EventError              EventType = "error"
)

// Event is the record pushed to bus subscribers. Events are ephemeral: the
// session core never persists them.
type Event struct {
	ID        string    `json:"id"`
	TenantID  TenantID  `json:"tenantId"`
	Type      EventType `json:"type"`
	FromState State     `json:"fromState,omitempty"`
	ToState   State     `json:"toState,omitempty"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload carries the state-dependent part of an Event. At most one field is
// set for a given event type.
type Payload struct {
	AuthArtifact string       `json:"authArtifact,omitempty"`
	Message      *Message     `json:"message,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Identity     *DisplayInfo `json:"identity,omitempty"`
}

// Message is an inbound chat message relayed from the messaging backend.
type Message struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"receivedAt"`
}
