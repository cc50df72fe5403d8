package domain

import "time"

// Credential is an email/password identity known to the identity store.
type Credential struct {
	ID           string
	Email        string
	PasswordHash string
	Metadata     SignUpMetadata
	CreatedAt    time.Time
}
