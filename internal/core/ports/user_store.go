package ports

import (
	"context"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// UserStore is the users table of the hosted backend.
type UserStore interface {
	// FindByID returns domain.ErrProfileNotFound when no row matches.
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Insert returns domain.ErrUniqueViolation when a row with the same id exists.
	Insert(ctx context.Context, user *domain.User) (*domain.User, error)
	// Update applies patch to the row with id and returns the updated row.
	Update(ctx context.Context, id string, patch domain.ProfilePatch) (*domain.User, error)
}
