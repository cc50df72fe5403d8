package service

import "github.com/gecofarm/farm-session/internal/core/domain"

// GuardAction is what a protected route should do with a request.
type GuardAction string

const (
	GuardWait     GuardAction = "wait"
	GuardRedirect GuardAction = "redirect"
	GuardAllow    GuardAction = "allow"
)

// GuardDecision is the outcome of Guard. Location is set for redirects.
type GuardDecision struct {
	Action   GuardAction
	Location string
}

// Guard decides access to a route reserved for tier. Users of the other tier
// are sent to their own dashboard rather than rejected.
func Guard(state domain.SessionState, tier domain.RoleType) GuardDecision {
	if !state.Resolved() {
		return GuardDecision{Action: GuardWait}
	}
	if state.User == nil {
		return GuardDecision{Action: GuardRedirect, Location: domain.RouteLogin}
	}

	switch tier {
	case domain.RoleAdmin:
		if !state.User.IsAdmin() {
			return GuardDecision{Action: GuardRedirect, Location: domain.RouteEmployee}
		}
	case domain.RoleEmployee:
		if state.User.IsAdmin() {
			return GuardDecision{Action: GuardRedirect, Location: domain.RouteAdmin}
		}
	}
	return GuardDecision{Action: GuardAllow}
}
