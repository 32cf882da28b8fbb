// Package store holds the single auth session state consumed by the UI.
//
// Every mutation replaces the whole State value under a lock and then notifies
// subscribers synchronously, in registration order, before returning. Writers are
// serialized so subscribers always observe states in commit order. A mutation
// that leaves the state unchanged does not notify.
package store

import (
	"sync"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/domain"

	"go.uber.org/zap"
)

// Status is the signed-in/signed-out discriminator of a Session.
type Status int

const (
	SignedOut Status = iota
	SignedIn
)

func (s Status) String() string {
	if s == SignedIn {
		return "signed_in"
	}
	return "signed_out"
}

// Session is the user-visible auth state.
type Session struct {
	Status  Status
	User    *domain.Identity
	Loading bool
	Error   *common.AuthError
}

// State is one immutable snapshot of the store.
type State struct {
	Session
	// ConfirmationResult is the live phone challenge, if any.
	ConfirmationResult *domain.PhoneChallenge
	// Resolved is set once the first identity signal has arrived.
	Resolved bool
}

// IsSignedIn reports whether the snapshot holds an identity.
func (s State) IsSignedIn() bool {
	return s.Status == SignedIn && s.User != nil
}

func (s State) equal(o State) bool {
	return s.Status == o.Status &&
		s.User.Equal(o.User) &&
		s.Loading == o.Loading &&
		s.Error == o.Error &&
		s.ConfirmationResult == o.ConfirmationResult &&
		s.Resolved == o.Resolved
}

// Listener receives every committed state.
type Listener func(State)

type subscription struct {
	id uint64
	fn Listener
}

// Store is the Auth Session Store. Create one per App with New.
type Store struct {
	writeMu sync.Mutex // serializes commit+notify sequences

	mu     sync.RWMutex
	state  State
	subs   []subscription
	nextID uint64

	logger *zap.Logger
}

// New creates a store in the "don't know yet" startup state: signed out, loading.
func New(logger *zap.Logger) *Store {
	return &Store{
		state:  State{Session: Session{Status: SignedOut, Loading: true}},
		logger: logger.Named("SessionStore"),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every future commit. The returned func removes it
// and is safe to call more than once.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// update computes the next state from the current one and commits it. It returns
// whether anything changed. Listeners must not call mutating methods synchronously.
func (s *Store) update(next func(State) State) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.state
	cur := next(prev)
	if cur.equal(prev) {
		s.mu.Unlock()
		return false
	}
	s.state = cur
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(cur)
	}
	return true
}

// SetIdentity records an identity signal from the observer or the poller.
// Setting the identity that is already current, or nil while signed out, is a
// no-op once the first signal has resolved the startup state.
func (s *Store) SetIdentity(identity *domain.Identity) bool {
	identity = identity.Clone()
	changed := s.update(func(st State) State {
		if !st.Resolved {
			st.Resolved = true
			st.Loading = false
		}
		if identity == nil {
			st.Status = SignedOut
			st.User = nil
			return st
		}
		if st.Status != SignedIn {
			st.Error = nil
		}
		if !st.User.Equal(identity) {
			st.User = identity
		}
		st.Status = SignedIn
		return st
	})
	if changed {
		s.logger.Debug("Identity signal applied", zap.Bool("signedIn", identity != nil))
	}
	return changed
}

// BeginAction marks an action in flight: loading=true, error=nil.
func (s *Store) BeginAction() {
	s.update(func(st State) State {
		st.Loading = true
		st.Error = nil
		return st
	})
}

// EndAction marks the in-flight action as finished successfully.
func (s *Store) EndAction() {
	s.update(func(st State) State {
		st.Loading = false
		return st
	})
}

// FailAction finishes the in-flight action with err.
func (s *Store) FailAction(err *common.AuthError) {
	s.update(func(st State) State {
		st.Loading = false
		st.Error = err
		return st
	})
}

// ClearError sets error=nil without touching user or loading.
func (s *Store) ClearError() {
	s.update(func(st State) State {
		st.Error = nil
		return st
	})
}

// SetChallenge replaces the live phone challenge.
func (s *Store) SetChallenge(challenge *domain.PhoneChallenge) {
	s.update(func(st State) State {
		st.ConfirmationResult = challenge
		return st
	})
}

// ClearChallenge removes the live challenge if it still carries handle.
// An empty handle clears unconditionally.
func (s *Store) ClearChallenge(handle domain.ChallengeHandle) {
	s.update(func(st State) State {
		if st.ConfirmationResult == nil {
			return st
		}
		if handle == "" || st.ConfirmationResult.Handle == handle {
			st.ConfirmationResult = nil
		}
		return st
	})
}

// SignOut forces the local signed-out state regardless of in-flight actions.
func (s *Store) SignOut() {
	s.update(func(st State) State {
		st.Status = SignedOut
		st.User = nil
		st.Loading = false
		st.Error = nil
		st.ConfirmationResult = nil
		st.Resolved = true
		return st
	})
	s.logger.Info("Session signed out locally")
}
