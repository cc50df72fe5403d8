package service

import (
	"context"
	"sync"
	"time"

	"github.com/gecofarm/farm-session/internal/core/ports"
	"github.com/gecofarm/farm-session/internal/pkg/metrics"
)

// IdentityFactory binds an identity store to a browser session.
type IdentityFactory func(sessionID string) ports.IdentityStore

type managedResolver struct {
	resolver *SessionResolver
	lastSeen time.Time
}

// SessionManager owns one SessionResolver per browser session and evicts the
// ones that have been idle for longer than idleTTL.
type SessionManager struct {
	newIdentity IdentityFactory
	deps        ResolverDeps
	idleTTL     time.Duration
	now         func() time.Time

	mu        sync.Mutex
	resolvers map[string]*managedResolver
}

func NewSessionManager(newIdentity IdentityFactory, deps ResolverDeps, idleTTL time.Duration) *SessionManager {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &SessionManager{
		newIdentity: newIdentity,
		deps:        deps,
		idleTTL:     idleTTL,
		now:         now,
		resolvers:   make(map[string]*managedResolver),
	}
}

// Acquire returns the resolver of sessionID, creating and starting it on
// first use.
func (m *SessionManager) Acquire(sessionID string) ports.SessionResolver {
	return m.acquire(sessionID)
}

// Bind returns the resolver serving sessionID for one request. A live
// resolver is reused. Otherwise a session with no signed-in identity, which
// includes every fresh one, gets an anonymous resolver that holds no
// subscription until it starts signing in or is watched.
func (m *SessionManager) Bind(ctx context.Context, sessionID string, fresh bool) ports.SessionResolver {
	if r := m.lookup(sessionID); r != nil {
		return r
	}
	if !fresh {
		sess, err := m.newIdentity(sessionID).GetSession(ctx)
		if err != nil {
			m.deps.Log.Warn().Err(err).Str("session_id", sessionID).Msg("session lookup failed, binding resolver")
			return m.acquire(sessionID)
		}
		if sess != nil {
			return m.acquire(sessionID)
		}
	}
	return &anonymousResolver{sessionID: sessionID, manager: m}
}

// lookup returns the live resolver of sessionID, or nil.
func (m *SessionManager) lookup(sessionID string) *SessionResolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.resolvers[sessionID]
	if !ok {
		return nil
	}
	entry.lastSeen = m.now()
	return entry.resolver
}

func (m *SessionManager) acquire(sessionID string) *SessionResolver {
	m.mu.Lock()
	if entry, ok := m.resolvers[sessionID]; ok {
		entry.lastSeen = m.now()
		m.mu.Unlock()
		return entry.resolver
	}
	r := NewSessionResolver(sessionID, m.newIdentity(sessionID), m.deps)
	m.resolvers[sessionID] = &managedResolver{resolver: r, lastSeen: m.now()}
	metrics.SessionsActive.Set(float64(len(m.resolvers)))
	m.mu.Unlock()

	r.Start()
	return r
}

// Sweep closes resolvers idle for longer than idleTTL and returns how many
// were evicted.
func (m *SessionManager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*SessionResolver
	for id, entry := range m.resolvers {
		if entry.lastSeen.Before(cutoff) {
			idle = append(idle, entry.resolver)
			delete(m.resolvers, id)
		}
	}
	metrics.SessionsActive.Set(float64(len(m.resolvers)))
	m.mu.Unlock()

	for _, r := range idle {
		r.Close()
	}
	if len(idle) > 0 {
		m.deps.Log.Debug().Int("evicted", len(idle)).Msg("idle sessions swept")
	}
	return len(idle)
}

// Run sweeps every interval until ctx is cancelled.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len returns the number of live resolvers.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resolvers)
}

// Close closes every resolver.
func (m *SessionManager) Close() {
	m.mu.Lock()
	all := make([]*SessionResolver, 0, len(m.resolvers))
	for id, entry := range m.resolvers {
		all = append(all, entry.resolver)
		delete(m.resolvers, id)
	}
	metrics.SessionsActive.Set(0)
	m.mu.Unlock()

	for _, r := range all {
		r.Close()
	}
}
