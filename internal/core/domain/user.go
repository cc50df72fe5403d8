package domain

import "time"

// RoleType is the authorization tier of a user.
type RoleType string

const (
	RoleAdmin    RoleType = "admin"
	RoleEmployee RoleType = "employee"
)

// Valid reports whether t is one of the known tiers.
func (t RoleType) Valid() bool {
	return t == RoleAdmin || t == RoleEmployee
}

// Role is the tagged role of a user. Position is a free-text label and has no
// effect on authorization.
type Role struct {
	Type     RoleType `json:"type" bson:"type"`
	Position string   `json:"position" bson:"position"`
}

// User is the resolved application identity stored in the users table.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	ProfilePhoto *string   `json:"profile_photo"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user belongs to the admin tier.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role.Type == RoleAdmin
}

// Clone returns a deep copy so cached users are never shared with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.ProfilePhoto != nil {
		p := *u.ProfilePhoto
		c.ProfilePhoto = &p
	}
	return &c
}

// ProfilePatch carries the mutable profile fields. Nil fields are left as is.
// The role is deliberately absent: it cannot change after creation.
type ProfilePatch struct {
	Name         *string
	ProfilePhoto *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.ProfilePhoto == nil
}
