package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gecofarm/farm-session/internal/core/domain"
	"github.com/gecofarm/farm-session/internal/core/ports"
	"github.com/gecofarm/farm-session/internal/pkg/metrics"
)

var errResolverClosed = errors.New("session resolver closed")

const defaultPublishTimeout = 2 * time.Second

// ResolverDeps are the collaborators shared by every resolver.
type ResolverDeps struct {
	Users  ports.UserStore
	Seeds  domain.DemoSeedPolicy
	Tasks  ports.TaskQueue
	Events ports.AuthEventPublisher // optional
	Log    zerolog.Logger
	Now    func() time.Time // defaults to time.Now

	// PublishTimeout bounds each auth event hand-off. Defaults to two seconds.
	PublishTimeout time.Duration
}

// SessionResolver owns the current-user state of one browser session. Every
// state change runs as a task keyed by the session id, so resolutions never
// interleave and the last one to finish reflects the latest session event.
type SessionResolver struct {
	key      string
	identity ports.IdentityStore
	users    ports.UserStore
	seeds    domain.DemoSeedPolicy
	tasks    ports.TaskQueue
	events   ports.AuthEventPublisher
	log      zerolog.Logger
	now      func() time.Time

	publishTimeout time.Duration

	hub *stateHub

	mu          sync.Mutex
	unsubscribe func()
	started     bool
	closed      bool
}

// NewSessionResolver returns a resolver for browser session key. It stays in
// the init phase until Start is called.
func NewSessionResolver(key string, identity ports.IdentityStore, deps ResolverDeps) *SessionResolver {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	publishTimeout := deps.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	return &SessionResolver{
		key:      key,
		identity: identity,
		users:    deps.Users,
		seeds:    deps.Seeds,
		tasks:    deps.Tasks,
		events:   deps.Events,
		log:      deps.Log.With().Str("session_id", key).Logger(),
		now:      now,
		hub:      newStateHub(),

		publishTimeout: publishTimeout,
	}
}

// Start subscribes to session changes and schedules the cold-start
// resolution. It is safe to call more than once.
func (r *SessionResolver) Start() {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.hub.beginLoading()

	unsubscribe := r.identity.OnSessionChange(func(ev domain.SessionEvent) {
		r.log.Debug().Str("kind", string(ev.Kind)).Msg("session change received")
		sess := ev.Session
		r.tasks.Submit(r.key, func(ctx context.Context) {
			r.announce(r.resolvePassive(ctx, sess))
		})
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	r.tasks.Submit(r.key, func(ctx context.Context) {
		sess, err := r.identity.GetSession(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("initial session lookup failed")
			r.hub.resolve(nil)
			metrics.ResolutionsTotal.WithLabelValues("error").Inc()
			return
		}
		r.announce(r.resolvePassive(ctx, sess))
	})
}

// Close detaches the resolver from the identity store and closes all
// watchers. Pending tasks still run but no one observes them.
func (r *SessionResolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	r.hub.close()
}

// Login signs in and resolves the user before returning the navigation hint.
// Every failure wraps domain.ErrAuthenticationFailed together with its cause.
func (r *SessionResolver) Login(ctx context.Context, email, password string) (string, error) {
	sess, err := r.identity.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		} else {
			metrics.LoginsTotal.WithLabelValues("error").Inc()
		}
		r.log.Info().Err(err).Str("email", email).Msg("sign in rejected")
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}

	var (
		user        *domain.User
		provisioned bool
	)
	err = r.runTask(ctx, func(taskCtx context.Context) error {
		var err error
		user, provisioned, err = r.resolve(taskCtx, sess)
		return err
	})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("email", email).Msg("profile resolution after sign in failed")
		return "", fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	userID := sess.IdentityID
	if user != nil {
		userID = user.ID
	}
	if provisioned {
		r.publish(ctx, domain.EventProfileProvisioned, user.ID, user.Email)
	}
	r.publish(ctx, domain.EventUserLoggedIn, userID, sess.Email)
	route := r.seeds.RouteFor(sess.Email)
	r.log.Info().Str("email", sess.Email).Str("redirect", route).Msg("user logged in")
	return route, nil
}

// Register creates a credential with profile metadata. The resulting user is
// resolved like any other session change, so store failures there only
// leave the session without a user.
func (r *SessionResolver) Register(ctx context.Context, name, email, password string, role domain.Role) error {
	if err := validateRegistration(name, email, password, role); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %w", domain.ErrRegistrationFailed, err)
	}

	sess, err := r.identity.SignUp(ctx, email, password, domain.SignUpMetadata{
		Name:         name,
		RoleType:     role.Type,
		RolePosition: role.Position,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRegistered) {
			metrics.RegistrationsTotal.WithLabelValues("already_registered").Inc()
			return fmt.Errorf("register: %w", err)
		}
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("email", email).Msg("sign up failed")
		return fmt.Errorf("%w: %w", domain.ErrRegistrationFailed, err)
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	r.publish(ctx, domain.EventUserRegistered, sess.IdentityID, email)
	r.log.Info().Str("email", email).Str("role", string(role.Type)).Msg("user registered")

	var created *domain.User
	err = r.runTask(ctx, func(taskCtx context.Context) error {
		created = r.resolvePassive(taskCtx, sess)
		return nil
	})
	if err != nil {
		return err
	}
	if created != nil {
		r.publish(ctx, domain.EventProfileProvisioned, created.ID, created.Email)
	}
	return nil
}

// Logout signs out. The user is cleared only when the store confirms it.
func (r *SessionResolver) Logout(ctx context.Context) error {
	if err := r.identity.SignOut(ctx); err != nil {
		r.log.Warn().Err(err).Msg("sign out failed, keeping current user")
		return fmt.Errorf("logout: %w", err)
	}

	var prev *domain.User
	err := r.runTask(ctx, func(context.Context) error {
		prev = r.hub.current().User
		r.hub.resolve(nil)
		return nil
	})
	if err != nil {
		return err
	}

	if prev != nil {
		r.publish(ctx, domain.EventUserLoggedOut, prev.ID, prev.Email)
		r.log.Info().Str("user_id", prev.ID).Msg("user logged out")
	}
	return nil
}

// UpdateProfile changes the mutable profile fields of the current user.
func (r *SessionResolver) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.User, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("update profile: %w: nothing to update", domain.ErrValidation)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("update profile: %w: name must not be empty", domain.ErrValidation)
	}

	var updated *domain.User
	err := r.runTask(ctx, func(taskCtx context.Context) error {
		st := r.hub.current()
		if !st.Resolved() || st.User == nil {
			return domain.ErrNoSession
		}
		u, err := r.users.Update(taskCtx, st.User.ID, patch)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		r.hub.resolve(u)
		updated = u.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Current returns a snapshot of the current-user state.
func (r *SessionResolver) Current() domain.SessionState {
	return r.hub.current()
}

// Watch returns a channel yielding the current state and every later
// transition, and the function that stops it.
func (r *SessionResolver) Watch() (<-chan domain.SessionState, func()) {
	return r.hub.subscribe()
}

// AwaitResolved blocks until the state is resolved or ctx is done.
func (r *SessionResolver) AwaitResolved(ctx context.Context) (domain.SessionState, error) {
	ch, stop := r.Watch()
	defer stop()
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return r.Current(), errResolverClosed
			}
			if st.Resolved() {
				return st, nil
			}
		case <-ctx.Done():
			return r.Current(), ctx.Err()
		}
	}
}

// IsAdmin is true only while a resolved admin user is present.
func (r *SessionResolver) IsAdmin() bool {
	return r.hub.current().IsAdmin()
}

// runTask schedules fn behind every earlier task of this session and waits
// for it. The task outlives ctx so an abandoned request cannot leave the
// state half-resolved.
func (r *SessionResolver) runTask(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	taskCtx := context.WithoutCancel(ctx)
	done := make(chan error, 1)
	r.tasks.Submit(r.key, func(context.Context) {
		done <- fn(taskCtx)
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolvePassive resolves without surfacing errors: a failure degrades the
// state to "no current user". It returns the user only when this resolution
// provisioned it.
func (r *SessionResolver) resolvePassive(ctx context.Context, sess *domain.Session) *domain.User {
	user, provisioned, err := r.resolve(ctx, sess)
	if err != nil {
		r.log.Error().Err(err).Msg("current user resolution failed")
		return nil
	}
	if !provisioned {
		return nil
	}
	return user
}

// resolve must run inside a task. Events it causes are reported to the
// caller, never published from the task itself.
func (r *SessionResolver) resolve(ctx context.Context, sess *domain.Session) (*domain.User, bool, error) {
	r.hub.beginLoading()

	if sess == nil {
		r.hub.resolve(nil)
		metrics.ResolutionsTotal.WithLabelValues("absent").Inc()
		return nil, false, nil
	}

	user, provisioned, err := r.loadProfile(ctx, sess)
	if err != nil {
		r.hub.resolve(nil)
		metrics.ResolutionsTotal.WithLabelValues("error").Inc()
		return nil, false, err
	}
	r.hub.resolve(user)
	if user == nil {
		metrics.ResolutionsTotal.WithLabelValues("no_profile").Inc()
	} else {
		metrics.ResolutionsTotal.WithLabelValues("user").Inc()
	}
	return user, provisioned, nil
}

func (r *SessionResolver) loadProfile(ctx context.Context, sess *domain.Session) (*domain.User, bool, error) {
	user, err := r.users.FindByID(ctx, sess.IdentityID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, false, fmt.Errorf("fetch profile: %w", err)
	}

	seed, ok := r.seeds.Lookup(sess.Email)
	if !ok {
		r.log.Info().Str("identity_id", sess.IdentityID).Msg("no profile for authenticated identity")
		return nil, false, nil
	}
	return r.provision(ctx, sess, seed)
}

// provision inserts the demo profile for sess. A concurrent insert that won
// the race is recovered by reading the row it created; only the winner
// reports provisioned.
func (r *SessionResolver) provision(ctx context.Context, sess *domain.Session, seed domain.DemoSeed) (*domain.User, bool, error) {
	created, err := r.users.Insert(ctx, seed.NewUser(sess.IdentityID, r.now().UTC()))
	switch {
	case err == nil:
		metrics.DemoProvisionsTotal.WithLabelValues("created").Inc()
		r.log.Info().Str("email", seed.Email).Msg("demo profile provisioned")
		return created, true, nil
	case errors.Is(err, domain.ErrUniqueViolation):
		metrics.DemoProvisionsTotal.WithLabelValues("race_recovered").Inc()
		r.log.Debug().Str("email", seed.Email).Msg("demo profile already provisioned, re-fetching")
		user, err := r.users.FindByID(ctx, sess.IdentityID)
		if err != nil {
			return nil, false, fmt.Errorf("re-fetch demo profile: %w", err)
		}
		return user, false, nil
	default:
		metrics.DemoProvisionsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("provision demo profile: %w", err)
	}
}

// announce publishes the provisioning event of a background resolution off
// the task queue.
func (r *SessionResolver) announce(created *domain.User) {
	if created == nil || r.events == nil {
		return
	}
	go r.publish(context.Background(), domain.EventProfileProvisioned, created.ID, created.Email)
}

// publish hands the event to the publisher, bounded by publishTimeout
// whatever the caller's deadline.
func (r *SessionResolver) publish(ctx context.Context, typ domain.AuthEventType, userID, email string) {
	if r.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.publishTimeout)
	defer cancel()

	ev := domain.AuthEvent{Type: typ, UserID: userID, Email: email, OccurredAt: r.now().UTC()}
	if err := r.events.Publish(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("event", string(typ)).Msg("failed to publish auth event")
	}
}

func validateRegistration(name, email, password string, role domain.Role) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	case strings.TrimSpace(email) == "":
		return fmt.Errorf("%w: email is required", domain.ErrValidation)
	case password == "":
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	case !role.Type.Valid():
		return fmt.Errorf("%w: role type must be admin or employee", domain.ErrValidation)
	case strings.TrimSpace(role.Position) == "":
		return fmt.Errorf("%w: role position is required", domain.ErrValidation)
	}
	return nil
}
