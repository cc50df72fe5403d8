// Package identity implements the credential side of the backend: email and
// password accounts, per-browser sessions and their change notifications, and
// the sign-up trigger that materialises the users row.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/core/ports"
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultTimeout    = 5 * time.Second
)

// CredentialRepository persists credentials.
type CredentialRepository interface {
	// Create returns domain.ErrAlreadyRegistered when the email is taken.
	Create(ctx context.Context, cred *domain.Credential) error
	// FindByEmail returns domain.ErrCredentialNotFound when no credential matches.
	FindByEmail(ctx context.Context, email string) (*domain.Credential, error)
}

// SessionStore keeps the signed-in credential of each browser session and
// broadcasts its changes.
type SessionStore interface {
	Put(ctx context.Context, sessionID string, sess domain.Session, ttl time.Duration) error
	// Get returns nil when the browser session has no signed-in credential.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
	Publish(ctx context.Context, sessionID string, ev domain.SessionEvent) error
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionEvent, func() error)
}

// Options tune a Store.
type Options struct {
	SessionTTL time.Duration
	Timeout    time.Duration
	BcryptCost int
}

// Factory builds identity stores bound to browser sessions.
type Factory struct {
	creds    CredentialRepository
	sessions SessionStore
	users    ports.UserStore
	opts     Options
	log      zerolog.Logger
}

func NewFactory(creds CredentialRepository, sessions SessionStore, users ports.UserStore, opts Options, log zerolog.Logger) *Factory {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Factory{creds: creds, sessions: sessions, users: users, opts: opts, log: log}
}

// ForSession returns the store bound to sessionID.
func (f *Factory) ForSession(sessionID string) ports.IdentityStore {
	return &Store{
		sessionID: sessionID,
		creds:     f.creds,
		sessions:  f.sessions,
		users:     f.users,
		opts:      f.opts,
		log:       f.log.With().Str("session_id", sessionID).Logger(),
		now:       time.Now,
		listeners: make(map[int]func(domain.SessionEvent)),
	}
}

// Store is an IdentityStore bound to one browser session.
type Store struct {
	sessionID string
	creds     CredentialRepository
	sessions  SessionStore
	users     ports.UserStore
	opts      Options
	log       zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	listeners map[int]func(domain.SessionEvent)
	nextID    int
	stopFeed  func()
}

func (s *Store) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("sign in: %w: email and password are required", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	cred, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, unavailable("sign in", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.open(ctx, cred)
}

func (s *Store) SignUp(ctx context.Context, email, password string, meta domain.SignUpMetadata) (*domain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("sign up: %w: email and password are required", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w: %w", domain.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	cred := &domain.Credential{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Metadata:     meta,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			return nil, err
		}
		return nil, unavailable("sign up", err)
	}

	s.createProfile(ctx, cred)
	return s.open(ctx, cred)
}

func (s *Store) SignOut(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.sessions.Delete(ctx, s.sessionID); err != nil {
		return unavailable("sign out", err)
	}
	s.notify(ctx, domain.SessionEvent{Kind: domain.SessionSignedOut, OccurredAt: s.now().UTC()})
	return nil
}

func (s *Store) GetSession(ctx context.Context) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	sess, err := s.sessions.Get(ctx, s.sessionID)
	if err != nil {
		return nil, unavailable("get session", err)
	}
	return sess, nil
}

// OnSessionChange registers fn. The session feed is subscribed while at least
// one listener is registered.
func (s *Store) OnSessionChange(fn func(domain.SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	if s.stopFeed == nil {
		s.stopFeed = s.startFeed()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			if len(s.listeners) == 0 && s.stopFeed != nil {
				s.stopFeed()
				s.stopFeed = nil
			}
		})
	}
}

// startFeed must be called with s.mu held.
func (s *Store) startFeed() func() {
	events, closeFeed := s.sessions.Subscribe(context.Background(), s.sessionID)
	go func() {
		for ev := range events {
			s.mu.Lock()
			fns := make([]func(domain.SessionEvent), 0, len(s.listeners))
			for _, fn := range s.listeners {
				fns = append(fns, fn)
			}
			s.mu.Unlock()
			for _, fn := range fns {
				fn(ev)
			}
		}
	}()
	return func() {
		if err := closeFeed(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close session feed")
		}
	}
}

func (s *Store) open(ctx context.Context, cred *domain.Credential) (*domain.Session, error) {
	sess := domain.Session{IdentityID: cred.ID, Email: cred.Email}
	if err := s.sessions.Put(ctx, s.sessionID, sess, s.opts.SessionTTL); err != nil {
		return nil, unavailable("open session", err)
	}
	s.notify(ctx, domain.SessionEvent{Kind: domain.SessionSignedIn, Session: &sess, OccurredAt: s.now().UTC()})
	return &sess, nil
}

// createProfile inserts the users row described by the sign-up metadata. A
// row that already exists is left untouched.
func (s *Store) createProfile(ctx context.Context, cred *domain.Credential) {
	if s.users == nil {
		return
	}
	now := s.now().UTC()
	user := &domain.User{
		ID:        cred.ID,
		Name:      cred.Metadata.Name,
		Email:     cred.Email,
		Role:      domain.Role{Type: cred.Metadata.RoleType, Position: cred.Metadata.RolePosition},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.users.Insert(ctx, user); err != nil && !errors.Is(err, domain.ErrUniqueViolation) {
		s.log.Error().Err(err).Str("identity_id", cred.ID).Msg("sign-up profile insert failed")
	}
}

func (s *Store) notify(ctx context.Context, ev domain.SessionEvent) {
	if err := s.sessions.Publish(ctx, s.sessionID, ev); err != nil {
		s.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("failed to publish session change")
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
