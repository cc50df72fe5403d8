package domain

import "errors"

// Failure kinds surfaced by the identity store and the session resolver.
// Callers match them with errors.Is; several may be wrapped together, e.g. a
// rejected login matches both ErrAuthenticationFailed and ErrInvalidCredentials.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAlreadyRegistered    = errors.New("email already registered")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrValidation           = errors.New("validation failed")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrUniqueViolation      = errors.New("unique violation")
	ErrNoSession            = errors.New("no authenticated user")
	ErrCredentialNotFound   = errors.New("credential not found")
)
