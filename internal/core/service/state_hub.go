package service

import (
	"sync"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

const watcherBuffer = 16

// stateHub holds the current-user state of one session and fans every
// transition out to watchers. The resolver is its only writer.
type stateHub struct {
	mu     sync.Mutex
	state  domain.SessionState
	subs   map[int]chan domain.SessionState
	nextID int
	closed bool
}

func newStateHub() *stateHub {
	return &stateHub{
		state: domain.SessionState{Phase: domain.PhaseInit},
		subs:  make(map[int]chan domain.SessionState),
	}
}

func (h *stateHub) current() domain.SessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return snapshot(h.state)
}

// beginLoading enters the loading phase. The previous user stays visible
// until the resolution completes; repeated calls while loading are no-ops.
func (h *stateHub) beginLoading() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Phase == domain.PhaseLoading {
		return
	}
	h.state = domain.SessionState{Phase: domain.PhaseLoading, User: h.state.User}
	h.broadcast()
}

func (h *stateHub) resolve(user *domain.User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = domain.SessionState{Phase: domain.PhaseResolved, User: user.Clone()}
	h.broadcast()
}

// subscribe returns a channel that first yields the current state and then
// every transition. When a watcher falls behind, its oldest pending state is
// dropped so the latest one is always delivered.
func (h *stateHub) subscribe() (<-chan domain.SessionState, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan domain.SessionState, watcherBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	ch <- snapshot(h.state)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

func (h *stateHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// broadcast must be called with h.mu held.
func (h *stateHub) broadcast() {
	for _, ch := range h.subs {
		st := snapshot(h.state)
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

func snapshot(st domain.SessionState) domain.SessionState {
	return domain.SessionState{Phase: st.Phase, User: st.User.Clone()}
}
