package domain

import "time"

// Navigation hints returned by login and used by the route guard.
const (
	RouteLogin     = "/login"
	RouteAdmin     = "/admin"
	RouteEmployee  = "/employee"
	RouteDashboard = "/dashboard"
)

// Reserved demo accounts.
const (
	DemoAdminEmail    = "admin@gecofarm.com"
	DemoEmployeeEmail = "employee@gecofarm.com"
)

// DemoSeed is the profile provisioned for a reserved email the first time it
// signs in without a users row.
type DemoSeed struct {
	Email        string
	Name         string
	Role         Role
	ProfilePhoto string
	Route        string
}

// NewUser builds the row inserted for identity id.
func (s DemoSeed) NewUser(id string, now time.Time) *User {
	u := &User{
		ID:        id,
		Name:      s.Name,
		Email:     s.Email,
		Role:      s.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.ProfilePhoto != "" {
		photo := s.ProfilePhoto
		u.ProfilePhoto = &photo
	}
	return u
}

// DemoSeedPolicy maps reserved emails to their seeds. Matching is exact.
type DemoSeedPolicy struct {
	seeds    map[string]DemoSeed
	fallback string
}

// NewDemoSeedPolicy returns a policy over seeds. fallbackRoute is the login
// route hint for every email that is not reserved.
func NewDemoSeedPolicy(fallbackRoute string, seeds ...DemoSeed) DemoSeedPolicy {
	m := make(map[string]DemoSeed, len(seeds))
	for _, s := range seeds {
		m[s.Email] = s
	}
	return DemoSeedPolicy{seeds: m, fallback: fallbackRoute}
}

// DefaultDemoSeedPolicy returns the two GecoFarm demo accounts.
func DefaultDemoSeedPolicy() DemoSeedPolicy {
	return NewDemoSeedPolicy(RouteDashboard,
		DemoSeed{
			Email:        DemoAdminEmail,
			Name:         "Admin User",
			Role:         Role{Type: RoleAdmin, Position: "Farm Manager"},
			ProfilePhoto: "https://images.pexels.com/photos/220453/pexels-photo-220453.jpeg",
			Route:        RouteAdmin,
		},
		DemoSeed{
			Email:        DemoEmployeeEmail,
			Name:         "Employee User",
			Role:         Role{Type: RoleEmployee, Position: "Farm Attendant"},
			ProfilePhoto: "https://images.pexels.com/photos/1222271/pexels-photo-1222271.jpeg",
			Route:        RouteEmployee,
		},
	)
}

// Lookup returns the seed reserved for email.
func (p DemoSeedPolicy) Lookup(email string) (DemoSeed, bool) {
	s, ok := p.seeds[email]
	return s, ok
}

// RouteFor returns the login route hint for email. It depends on the literal
// email only, never on the resolved role.
func (p DemoSeedPolicy) RouteFor(email string) string {
	if s, ok := p.seeds[email]; ok && s.Route != "" {
		return s.Route
	}
	return p.fallback
}
