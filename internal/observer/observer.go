// Package observer keeps the single push subscription to the identity provider.
package observer

import (
	"sync"

	"learnapp_auth/internal/domain"
	"learnapp_auth/internal/gateway"
	"learnapp_auth/internal/store"

	"go.uber.org/zap"
)

// SessionObserver holds at most one live gateway subscription.
type SessionObserver struct {
	gw     gateway.Gateway
	logger *zap.Logger

	mu          sync.Mutex
	unsubscribe func()
	generation  uint64
	closed      bool
}

// New creates an observer with no subscription.
func New(gw gateway.Gateway, logger *zap.Logger) *SessionObserver {
	return &SessionObserver{gw: gw, logger: logger.Named("SessionObserver")}
}

// Subscribe replaces the live subscription with one forwarding mapped identities
// to onChange. The previous subscription is released first. The returned func
// releases this subscription only and is a no-op once it has been replaced.
func (o *SessionObserver) Subscribe(onChange func(*domain.Identity)) func() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.logger.Warn("Subscribe called after Close; ignoring")
		return func() {}
	}
	o.releaseLocked()
	o.mu.Unlock()

	// The gateway replays the current user synchronously, so o.mu must not be held.
	unsub := o.gw.Subscribe(func(u *domain.ProviderUser) {
		onChange(domain.IdentityFromProvider(u))
	})

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		unsub()
		return func() {}
	}
	o.releaseLocked()
	o.generation++
	gen := o.generation
	o.unsubscribe = unsub
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.generation == gen && o.unsubscribe != nil {
			o.releaseLocked()
		}
	}
}

func (o *SessionObserver) releaseLocked() {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
}

// Attach subscribes st.SetIdentity as the change handler.
func (o *SessionObserver) Attach(st *store.Store) func() {
	return o.Subscribe(func(identity *domain.Identity) {
		if st.SetIdentity(identity) {
			o.logger.Debug("Push identity applied", zap.Bool("signedIn", identity != nil))
		}
	})
}

// Active reports whether a subscription is live.
func (o *SessionObserver) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unsubscribe != nil
}

// Close releases the live subscription. Later calls do nothing.
func (o *SessionObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.releaseLocked()
	o.logger.Info("Session observer unsubscribed")
}
