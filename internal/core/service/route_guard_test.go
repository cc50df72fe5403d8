package service

import (
	"testing"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

func TestGuard(t *testing.T) {
	admin := &domain.User{ID: "a", Role: domain.Role{Type: domain.RoleAdmin}}
	employee := &domain.User{ID: "e", Role: domain.Role{Type: domain.RoleEmployee}}
	resolved := func(u *domain.User) domain.SessionState {
		return domain.SessionState{Phase: domain.PhaseResolved, User: u}
	}

	cases := []struct {
		name  string
		state domain.SessionState
		tier  domain.RoleType
		want  GuardDecision
	}{
		{"init waits", domain.SessionState{Phase: domain.PhaseInit}, domain.RoleAdmin, GuardDecision{Action: GuardWait}},
		{"loading waits even with a cached user", domain.SessionState{Phase: domain.PhaseLoading, User: admin}, domain.RoleAdmin, GuardDecision{Action: GuardWait}},
		{"absent goes to login", resolved(nil), domain.RoleEmployee, GuardDecision{Action: GuardRedirect, Location: domain.RouteLogin}},
		{"employee on admin route", resolved(employee), domain.RoleAdmin, GuardDecision{Action: GuardRedirect, Location: domain.RouteEmployee}},
		{"admin on employee route", resolved(admin), domain.RoleEmployee, GuardDecision{Action: GuardRedirect, Location: domain.RouteAdmin}},
		{"admin allowed", resolved(admin), domain.RoleAdmin, GuardDecision{Action: GuardAllow}},
		{"employee allowed", resolved(employee), domain.RoleEmployee, GuardDecision{Action: GuardAllow}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Guard(tc.state, tc.tier); got != tc.want {
				t.Fatalf("Guard() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
