package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/tasklist/internal/identity"
)

// Resolver obtains a user-scoped identity before any data operation runs.
//
// It signs in once on Start (bearer token when supplied, anonymous otherwise)
// and then follows provider auth-state notifications. A notification without
// a user resolves to a fresh random identifier so the client stays usable.
type Resolver struct {
	provider identity.Provider
	newID    func() string

	mu          sync.RWMutex
	current     *Session
	started     bool
	closed      bool
	unsubscribe func()
	watchers    map[int]chan Session
	nextWatchID int
}

func NewResolver(provider identity.Provider) *Resolver {
	return &Resolver{
		provider: provider,
		newID:    uuid.NewString,
		watchers: make(map[int]chan Session),
	}
}

// Start signs in without blocking the caller. Sign-in failure is logged and
// not retried; the auth listener is registered afterwards either way, so the
// first notification reflects the outcome of the attempt.
func (r *Resolver) Start(ctx context.Context, bearerToken string) {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	bearerToken = strings.TrimSpace(bearerToken)
	go func() {
		var err error
		if bearerToken != "" {
			_, err = r.provider.SignInWithToken(ctx, bearerToken)
		} else {
			_, err = r.provider.SignInAnonymously(ctx)
		}
		if err != nil {
			log.WithError(err).Error("authentication error")
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		unsubscribe := r.provider.OnAuthChange(r.handleAuthChange)

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			unsubscribe()
			return
		}
		r.unsubscribe = unsubscribe
		r.mu.Unlock()
	}()
}

// Current returns the resolved session, or false while still unresolved.
func (r *Resolver) Current() (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return Session{}, false
	}
	return *r.current, true
}

// Watch streams every resolved session. Slow readers only see the latest one.
// When a session is already resolved it is delivered immediately.
func (r *Resolver) Watch() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	r.nextWatchID++
	id := r.nextWatchID
	r.watchers[id] = ch
	if r.current != nil {
		ch <- *r.current
	}
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(c)
		}
	}
}

// Close stops following the provider and closes all watch channels.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	for id, ch := range r.watchers {
		delete(r.watchers, id)
		close(ch)
	}
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (r *Resolver) handleAuthChange(u *identity.User) {
	s := Session{ResolvedAt: time.Now().UTC()}
	if u != nil && strings.TrimSpace(u.UID) != "" {
		s.UserID = u.UID
		s.Durable = true
		log.WithField("user_id", s.UserID).Info("authenticated")
	} else {
		s.UserID = r.newID()
		log.WithField("user_id", s.UserID).Info("no user signed in, using a random id for this session")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.current = &s
	for _, ch := range r.watchers {
		publishLatest(ch, s)
	}
}

// publishLatest replaces any undelivered value so the reader always sees the
// most recent session. Callers hold r.mu, which serialises writers.
func publishLatest(ch chan Session, s Session) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
