package gateway

import (
	"sync"
	"testing"
	"time"

	"learnapp_auth/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerHub_ConcurrentPublishesArriveInOrder(t *testing.T) {
	for i := 0; i < 200; i++ {
		h := newListenerHub()

		var mu sync.Mutex
		var last *domain.ProviderUser
		var mirrored *domain.ProviderUser
		h.setMirror(func(u *domain.ProviderUser) {
			mu.Lock()
			mirrored = u
			mu.Unlock()
		})
		h.subscribe(func(u *domain.ProviderUser) {
			if u != nil {
				time.Sleep(50 * time.Microsecond)
			}
			mu.Lock()
			last = u
			mu.Unlock()
		})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.publish(&domain.ProviderUser{UID: "a"})
		}()
		go func() {
			defer wg.Done()
			h.publish(nil)
		}()
		wg.Wait()

		mu.Lock()
		require.Same(t, h.currentUser(), last, "iteration %d: listener ended on a stale user", i)
		require.Same(t, h.currentUser(), mirrored, "iteration %d: mirror ended on a stale user", i)
		mu.Unlock()
	}
}

func TestListenerHub_SubscribeSeesLatestPublish(t *testing.T) {
	h := newListenerHub()
	h.publish(&domain.ProviderUser{UID: "a"})

	var got []*domain.ProviderUser
	unsub := h.subscribe(func(u *domain.ProviderUser) { got = append(got, u) })
	h.publish(nil)
	unsub()
	h.publish(&domain.ProviderUser{UID: "b"})

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].UID)
	assert.Nil(t, got[1])
	assert.Equal(t, 0, h.listenerCount())
}
