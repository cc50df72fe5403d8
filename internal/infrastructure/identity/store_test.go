package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

type memCreds struct {
	mu     sync.Mutex
	byMail map[string]*domain.Credential
	err    error
}

func newMemCreds() *memCreds {
	return &memCreds{byMail: make(map[string]*domain.Credential)}
}

func (m *memCreds) Create(_ context.Context, cred *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.byMail[cred.Email]; ok {
		return domain.ErrAlreadyRegistered
	}
	c := *cred
	m.byMail[cred.Email] = &c
	return nil
}

func (m *memCreds) FindByEmail(_ context.Context, email string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byMail[email]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	out := *c
	return &out, nil
}

type memSessions struct {
	mu        sync.Mutex
	sessions  map[string]domain.Session
	subs      map[string][]chan domain.SessionEvent
	published []domain.SessionEvent
	deleteErr error
}

func newMemSessions() *memSessions {
	return &memSessions{
		sessions: make(map[string]domain.Session),
		subs:     make(map[string][]chan domain.SessionEvent),
	}
}

func (m *memSessions) Put(_ context.Context, sid string, sess domain.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = sess
	return nil
}

func (m *memSessions) Get(_ context.Context, sid string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sid]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (m *memSessions) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.sessions, sid)
	return nil
}

func (m *memSessions) Publish(_ context.Context, sid string, ev domain.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, ev)
	for _, ch := range m.subs[sid] {
		ch <- ev
	}
	return nil
}

func (m *memSessions) Subscribe(_ context.Context, sid string) (<-chan domain.SessionEvent, func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan domain.SessionEvent, 8)
	m.subs[sid] = append(m.subs[sid], ch)
	return ch, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subs[sid]
		for i, c := range subs {
			if c == ch {
				m.subs[sid] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		return nil
	}
}

func (m *memSessions) subscriberCount(sid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[sid])
}

type memUsers struct {
	mu   sync.Mutex
	rows map[string]*domain.User
}

func (m *memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return u.Clone(), nil
}

func (m *memUsers) Insert(_ context.Context, u *domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[u.ID]; ok {
		return nil, domain.ErrUniqueViolation
	}
	m.rows[u.ID] = u.Clone()
	return u.Clone(), nil
}

func (m *memUsers) Update(context.Context, string, domain.ProfilePatch) (*domain.User, error) {
	return nil, errors.New("not implemented")
}

type storeFixture struct {
	creds    *memCreds
	sessions *memSessions
	users    *memUsers
	factory  *Factory
}

func newStoreFixture() *storeFixture {
	f := &storeFixture{
		creds:    newMemCreds(),
		sessions: newMemSessions(),
		users:    &memUsers{rows: make(map[string]*domain.User)},
	}
	f.factory = NewFactory(f.creds, f.sessions, f.users, Options{BcryptCost: bcrypt.MinCost}, zerolog.Nop())
	return f
}

var aliceMeta = domain.SignUpMetadata{Name: "Alice", RoleType: domain.RoleEmployee, RolePosition: "Milker"}

func TestStore_SignUpCreatesCredentialProfileAndSession(t *testing.T) {
	f := newStoreFixture()
	store := f.factory.ForSession("sid-1")
	ctx := context.Background()

	sess, err := store.SignUp(ctx, "alice@x.com", "pw", aliceMeta)
	if err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if sess.IdentityID == "" || sess.Email != "alice@x.com" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	cred, _ := f.creds.FindByEmail(ctx, "alice@x.com")
	if cred.PasswordHash == "pw" {
		t.Fatalf("expected password to be hashed")
	}

	row, err := f.users.FindByID(ctx, sess.IdentityID)
	if err != nil {
		t.Fatalf("expected profile row from sign-up metadata: %v", err)
	}
	if row.Name != "Alice" || row.Role.Type != domain.RoleEmployee || row.Role.Position != "Milker" {
		t.Fatalf("unexpected profile row: %+v", row)
	}

	got, err := store.GetSession(ctx)
	if err != nil || got == nil || got.IdentityID != sess.IdentityID {
		t.Fatalf("expected open session, got %+v, %v", got, err)
	}
}

func TestStore_SignUpDuplicate(t *testing.T) {
	f := newStoreFixture()
	store := f.factory.ForSession("sid-1")
	ctx := context.Background()

	if _, err := store.SignUp(ctx, "alice@x.com", "pw", aliceMeta); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if _, err := store.SignUp(ctx, "alice@x.com", "pw", aliceMeta); !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestStore_SignIn(t *testing.T) {
	f := newStoreFixture()
	ctx := context.Background()
	if _, err := f.factory.ForSession("sid-1").SignUp(ctx, "alice@x.com", "pw", aliceMeta); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	other := f.factory.ForSession("sid-2")
	if _, err := other.SignIn(ctx, "alice@x.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := other.SignIn(ctx, "nobody@x.com", "pw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := other.SignIn(ctx, "", "pw"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty email, got %v", err)
	}

	sess, err := other.SignIn(ctx, "alice@x.com", "pw")
	if err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	if got, _ := other.GetSession(ctx); got == nil || got.IdentityID != sess.IdentityID {
		t.Fatalf("expected sid-2 to hold the session")
	}
}

func TestStore_RepositoryFailureIsStoreUnavailable(t *testing.T) {
	f := newStoreFixture()
	f.creds.err = errors.New("server selection timeout")

	_, err := f.factory.ForSession("sid-1").SignIn(context.Background(), "alice@x.com", "pw")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestStore_SignOut(t *testing.T) {
	f := newStoreFixture()
	store := f.factory.ForSession("sid-1")
	ctx := context.Background()
	if _, err := store.SignUp(ctx, "alice@x.com", "pw", aliceMeta); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}

	f.sessions.deleteErr = errors.New("connection refused")
	if err := store.SignOut(ctx); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if got, _ := store.GetSession(ctx); got == nil {
		t.Fatalf("failed sign out must keep the session")
	}

	f.sessions.deleteErr = nil
	if err := store.SignOut(ctx); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}
	if got, _ := store.GetSession(ctx); got != nil {
		t.Fatalf("expected no session after sign out")
	}
}

func TestStore_OnSessionChange(t *testing.T) {
	f := newStoreFixture()
	store := f.factory.ForSession("sid-1")
	ctx := context.Background()

	events := make(chan domain.SessionEvent, 4)
	unsubscribe := store.OnSessionChange(func(ev domain.SessionEvent) { events <- ev })

	if _, err := store.SignUp(ctx, "alice@x.com", "pw", aliceMeta); err != nil {
		t.Fatalf("SignUp returned error: %v", err)
	}
	if err := store.SignOut(ctx); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}

	want := []domain.SessionEventKind{domain.SessionSignedIn, domain.SessionSignedOut}
	for _, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Fatalf("expected %s, got %s", kind, ev.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}

	unsubscribe()
	if n := f.sessions.subscriberCount("sid-1"); n != 0 {
		t.Fatalf("expected feed closed after last unsubscribe, got %d subscribers", n)
	}
}
