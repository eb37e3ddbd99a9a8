package session

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store is the observable container for the process-wide Session. Writes
// replace the whole Session value under a mutex, so readers always see a
// fully-written state and never a token paired with a stale identity.
type Store struct {
	mu          sync.RWMutex
	current     Session
	subscribers map[int]func(Session)
	nextSubID   int
}

func NewStore() *Store {
	return &Store{subscribers: make(map[int]func(Session))}
}

// Read returns the most recently completed write.
func (s *Store) Read() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the session atomically and notifies subscribers.
func (s *Store) Set(sess Session) {
	s.mu.Lock()
	s.current = sess
	subs := s.snapshotSubscribersLocked()
	s.mu.Unlock()

	notify(subs, sess)
}

// SetToken installs a freshly acquired token. A nil identity means the
// caller did a token-only refresh: the stored identity is preserved as is.
// An identity without a numeric user id keeps the previously stored id,
// since the provider does not always echo it back on refresh. A refresh
// that returns a different subject replaces the identity wholesale; the
// account switch is logged but treated as legitimate.
func (s *Store) SetToken(accessToken string, identity *Identity) {
	s.mu.Lock()
	next := Session{AccessToken: accessToken, Identity: identity}
	if identity == nil {
		next.Identity = s.current.Identity
	} else if existing := s.current.Identity; existing != nil {
		if identity.Subject != "" && existing.Subject != "" && identity.Subject != existing.Subject {
			log.Warn().
				Str("previous_subject", existing.Subject).
				Str("new_subject", identity.Subject).
				Msg("Identity changed on token refresh")
		} else if identity.UserID == 0 && existing.UserID != 0 {
			preserved := *identity
			preserved.UserID = existing.UserID
			next.Identity = &preserved
		}
	}
	s.current = next
	subs := s.snapshotSubscribersLocked()
	s.mu.Unlock()

	notify(subs, next)
}

// Clear resets the session to the logged-out state and notifies
// subscribers. Safe to call when already cleared.
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = Session{}
	subs := s.snapshotSubscribersLocked()
	s.mu.Unlock()

	notify(subs, Session{})
}

// Subscribe registers fn to be called after every completed Set, SetToken
// or Clear, with the session value that was written. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// snapshotSubscribersLocked copies the subscriber list so notifications
// run outside the lock; a subscriber may itself call Read.
func (s *Store) snapshotSubscribersLocked() []func(Session) {
	subs := make([]func(Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Session), sess Session) {
	for _, fn := range subs {
		fn(sess)
	}
}
