package ports

import (
	"context"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// IdentityStore is the credential side of the hosted backend, bound to one
// browser session.
type IdentityStore interface {
	// SignIn may fail with domain.ErrInvalidCredentials, domain.ErrValidation
	// or domain.ErrStoreUnavailable.
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	// SignUp may fail with domain.ErrAlreadyRegistered, domain.ErrValidation
	// or domain.ErrStoreUnavailable.
	SignUp(ctx context.Context, email, password string, meta domain.SignUpMetadata) (*domain.Session, error)
	SignOut(ctx context.Context) error
	// GetSession returns nil when no credential is signed in.
	GetSession(ctx context.Context) (*domain.Session, error)
	// OnSessionChange registers fn for every asynchronous session change and
	// returns the handle that removes it.
	OnSessionChange(fn func(domain.SessionEvent)) (unsubscribe func())
}
