package ports

import (
	"context"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// SessionResolver turns authentication events into the current user of one
// browser session.
type SessionResolver interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, name, email, password string, role domain.Role) error
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.User, error)

	Current() domain.SessionState
	AwaitResolved(ctx context.Context) (domain.SessionState, error)
	Watch() (<-chan domain.SessionState, func())
	IsAdmin() bool
}

// SessionRegistry hands out the resolver serving a browser session. fresh
// marks a session id minted for this request.
type SessionRegistry interface {
	Bind(ctx context.Context, sessionID string, fresh bool) SessionResolver
}
