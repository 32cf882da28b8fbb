package gateway

import (
	"sync"

	"learnapp_auth/internal/domain"
)

// listenerHub is the push channel shared by the gateway implementations. It
// remembers the provider's current user and fans changes out to listeners.
type listenerHub struct {
	deliverMu sync.Mutex // serializes set-current+fan-out so listeners see changes in order

	mu        sync.Mutex
	current   *domain.ProviderUser
	mirror    ChangeFunc
	listeners map[uint64]ChangeFunc
	order     []uint64
	nextID    uint64
}

func newListenerHub() *listenerHub {
	return &listenerHub{listeners: make(map[uint64]ChangeFunc)}
}

func (h *listenerHub) subscribe(fn ChangeFunc) func() {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = fn
	h.order = append(h.order, id)
	current := h.current
	h.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// publish records user as current and notifies every listener. Listeners run
// outside h.mu but one publish at a time, so the last value a listener sees is
// always the current user. Listeners must not publish synchronously.
func (h *listenerHub) publish(user *domain.ProviderUser) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	h.mu.Lock()
	h.current = user
	mirror := h.mirror
	fns := make([]ChangeFunc, 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.listeners[id])
	}
	h.mu.Unlock()

	if mirror != nil {
		mirror(user)
	}
	for _, fn := range fns {
		fn(user)
	}
}

// setMirror registers fn to receive every publish ahead of the listeners,
// without the immediate delivery subscribe does.
func (h *listenerHub) setMirror(fn ChangeFunc) {
	h.mu.Lock()
	h.mirror = fn
	h.mu.Unlock()
}

func (h *listenerHub) currentUser() *domain.ProviderUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *listenerHub) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
