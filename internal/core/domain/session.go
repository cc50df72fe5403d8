package domain

import "time"

// Session is what the identity store reports for an authenticated credential.
type Session struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
}

// SignUpMetadata is attached to a credential at sign-up and used by the store
// to materialise the users row.
type SignUpMetadata struct {
	Name         string   `json:"name" bson:"name"`
	RoleType     RoleType `json:"role_type" bson:"role_type"`
	RolePosition string   `json:"role_position" bson:"role_position"`
}

// SessionEventKind names an asynchronous session change.
type SessionEventKind string

const (
	SessionSignedIn       SessionEventKind = "signed_in"
	SessionSignedOut      SessionEventKind = "signed_out"
	SessionTokenRefreshed SessionEventKind = "token_refreshed"
)

// SessionEvent is delivered by the identity store whenever its session state
// changes. Session is nil when there is no longer an authenticated credential.
type SessionEvent struct {
	Kind       SessionEventKind `json:"kind"`
	Session    *Session         `json:"session,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Phase is the resolution phase of the current user.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseLoading  Phase = "loading"
	PhaseResolved Phase = "resolved"
)

// SessionState is a snapshot of the current user observable. A resolved
// state with a nil User means "no current user".
type SessionState struct {
	Phase Phase `json:"phase"`
	User  *User `json:"user"`
}

// Resolved reports whether resolution has completed.
func (s SessionState) Resolved() bool {
	return s.Phase == PhaseResolved
}

// IsAdmin is true only for a resolved admin user.
func (s SessionState) IsAdmin() bool {
	return s.Resolved() && s.User.IsAdmin()
}
