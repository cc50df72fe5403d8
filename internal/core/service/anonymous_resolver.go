package service

import (
	"context"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

var anonymousState = domain.SessionState{Phase: domain.PhaseResolved}

// anonymousResolver serves a browser session nobody is signed in to. Reads
// answer "no current user" without touching the stores. Login, Register and
// Watch hand over to the real resolver, which the manager then keeps.
type anonymousResolver struct {
	sessionID string
	manager   *SessionManager
}

func (a *anonymousResolver) Login(ctx context.Context, email, password string) (string, error) {
	return a.manager.acquire(a.sessionID).Login(ctx, email, password)
}

func (a *anonymousResolver) Register(ctx context.Context, name, email, password string, role domain.Role) error {
	return a.manager.acquire(a.sessionID).Register(ctx, name, email, password, role)
}

func (a *anonymousResolver) Logout(ctx context.Context) error {
	if r := a.manager.lookup(a.sessionID); r != nil {
		return r.Logout(ctx)
	}
	return nil
}

func (a *anonymousResolver) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.User, error) {
	if r := a.manager.lookup(a.sessionID); r != nil {
		return r.UpdateProfile(ctx, patch)
	}
	return nil, domain.ErrNoSession
}

func (a *anonymousResolver) Current() domain.SessionState {
	if r := a.manager.lookup(a.sessionID); r != nil {
		return r.Current()
	}
	return anonymousState
}

func (a *anonymousResolver) AwaitResolved(ctx context.Context) (domain.SessionState, error) {
	if r := a.manager.lookup(a.sessionID); r != nil {
		return r.AwaitResolved(ctx)
	}
	return anonymousState, nil
}

func (a *anonymousResolver) Watch() (<-chan domain.SessionState, func()) {
	return a.manager.acquire(a.sessionID).Watch()
}

func (a *anonymousResolver) IsAdmin() bool {
	return a.Current().IsAdmin()
}
