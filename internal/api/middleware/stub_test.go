package middleware

import (
	"context"

	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/core/ports"
)

type stubResolver struct {
	state   domain.SessionState
	awaitFn func(ctx context.Context) (domain.SessionState, error)
}

func (s *stubResolver) Login(context.Context, string, string) (string, error) { return "", nil }
func (s *stubResolver) Register(context.Context, string, string, string, domain.Role) error {
	return nil
}
func (s *stubResolver) Logout(context.Context) error { return nil }
func (s *stubResolver) UpdateProfile(context.Context, domain.ProfilePatch) (*domain.User, error) {
	return nil, nil
}
func (s *stubResolver) Current() domain.SessionState { return s.state }
func (s *stubResolver) AwaitResolved(ctx context.Context) (domain.SessionState, error) {
	if s.awaitFn != nil {
		return s.awaitFn(ctx)
	}
	return s.state, nil
}
func (s *stubResolver) Watch() (<-chan domain.SessionState, func()) {
	ch := make(chan domain.SessionState, 1)
	ch <- s.state
	return ch, func() {}
}
func (s *stubResolver) IsAdmin() bool { return s.state.IsAdmin() }

type binding struct {
	sessionID string
	fresh     bool
}

type stubRegistry struct {
	bound    []binding
	resolver ports.SessionResolver
}

func (r *stubRegistry) Bind(_ context.Context, sessionID string, fresh bool) ports.SessionResolver {
	r.bound = append(r.bound, binding{sessionID: sessionID, fresh: fresh})
	return r.resolver
}
