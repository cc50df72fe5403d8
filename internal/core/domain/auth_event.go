package domain

import "time"

// AuthEventType names an audit event emitted by the session resolver.
type AuthEventType string

const (
	EventUserRegistered     AuthEventType = "user.registered"
	EventUserLoggedIn       AuthEventType = "user.logged_in"
	EventUserLoggedOut      AuthEventType = "user.logged_out"
	EventProfileProvisioned AuthEventType = "profile.provisioned"
)

// AuthEvent is published to the message broker after a successful operation.
type AuthEvent struct {
	Type       AuthEventType `json:"type"`
	UserID     string        `json:"user_id,omitempty"`
	Email      string        `json:"email"`
	OccurredAt time.Time     `json:"occurred_at"`
}
