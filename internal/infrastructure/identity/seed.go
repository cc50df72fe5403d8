package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// SeedAccount is a credential created at startup.
type SeedAccount struct {
	Email    string
	Password string
}

// SeedCredentials creates the credentials in accounts that do not exist yet
// and reports how many it created. Accounts without a password are skipped
// and existing credentials are left untouched. No profile row is written:
// the first sign-in provisions it from the demo seed policy.
func (f *Factory) SeedCredentials(ctx context.Context, accounts ...SeedAccount) (int, error) {
	created := 0
	for _, acc := range accounts {
		email := normalizeEmail(acc.Email)
		if email == "" || acc.Password == "" {
			continue
		}
		ok, err := f.seedOne(ctx, email, acc.Password)
		if err != nil {
			return created, err
		}
		if ok {
			created++
			f.log.Info().Str("email", email).Msg("demo credential seeded")
		}
	}
	return created, nil
}

func (f *Factory) seedOne(ctx context.Context, email, password string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	_, err := f.creds.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, domain.ErrCredentialNotFound):
		return false, unavailable("seed credential", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), f.opts.BcryptCost)
	if err != nil {
		return false, fmt.Errorf("seed credential %s: %w", email, err)
	}
	err = f.creds.Create(ctx, &domain.Credential{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrAlreadyRegistered):
		// another replica seeded it first
		return false, nil
	default:
		return false, unavailable("seed credential", err)
	}
}
