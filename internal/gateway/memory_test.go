package gateway

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newMemory(opts MemoryOptions) *MemoryGateway {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	return NewMemoryGateway(opts, zap.NewNop())
}

func providerCode(t *testing.T, err error) string {
	t.Helper()
	var provErr *common.ProviderError
	require.True(t, errors.As(err, &provErr), "expected a ProviderError, got %v", err)
	return provErr.Code
}

func approve(_ context.Context, authURL string) (string, string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}
	return "approved", u.Query().Get("state"), nil
}

func TestMemoryGateway_CreateAccount(t *testing.T) {
	ctx := context.Background()
	gw := newMemory(MemoryOptions{})
	defer gw.Close()

	_, err := gw.CreateAccount(ctx, "weak@example.com", "12345")
	assert.Equal(t, common.CodeWeakPassword, providerCode(t, err))

	user, err := gw.CreateAccount(ctx, "New@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "password", user.ProviderID)
	assert.NotEmpty(t, user.UID)

	_, err = gw.CreateAccount(ctx, "new@example.com", "another1")
	assert.Equal(t, common.CodeEmailExists, providerCode(t, err))
	assert.Equal(t, common.KindEmailInUse, common.MapError(err).Kind)
}

func TestMemoryGateway_Authenticate(t *testing.T) {
	ctx := context.Background()
	gw := newMemory(MemoryOptions{})
	_, err := gw.CreateAccount(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantKind common.ErrorKind
	}{
		{name: "unknown email", email: "b@example.com", password: "secret1", wantKind: common.KindUserNotFound},
		{name: "wrong password", email: "a@example.com", password: "wrong!!", wantKind: common.KindInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Authenticate(ctx, tt.email, tt.password)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, common.MapError(err).Kind)
		})
	}

	user, err := gw.Authenticate(ctx, " A@example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
}

func TestMemoryGateway_SubscribeAndPublish(t *testing.T) {
	ctx := context.Background()
	gw := newMemory(MemoryOptions{})

	var seen []*domain.ProviderUser
	unsub := gw.Subscribe(func(u *domain.ProviderUser) { seen = append(seen, u) })
	assert.Equal(t, 1, gw.ListenerCount())

	user, err := gw.CreateAccount(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = gw.UpdateDisplayName(ctx, user, "Ada")
	require.NoError(t, err)
	require.NoError(t, gw.SignOut(ctx))

	require.Len(t, seen, 4)
	assert.Nil(t, seen[0])
	assert.Equal(t, user.UID, seen[1].UID)
	assert.Equal(t, "Ada", seen[2].DisplayName)
	assert.Nil(t, seen[3])

	unsub()
	unsub()
	assert.Equal(t, 0, gw.ListenerCount())

	// A late subscriber gets the current user immediately.
	_, err = gw.Authenticate(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	var late *domain.ProviderUser
	gw.Subscribe(func(u *domain.ProviderUser) { late = u })
	require.NotNil(t, late)
	assert.Equal(t, "Ada", late.DisplayName)
}

func TestMemoryGateway_MirrorTo(t *testing.T) {
	ctx := context.Background()
	gw := newMemory(MemoryOptions{})

	var mirrored []*domain.ProviderUser
	gw.MirrorTo(func(u *domain.ProviderUser) { mirrored = append(mirrored, u) })
	_, err := gw.CreateAccount(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	gw.MirrorTo(nil)
	require.NoError(t, gw.SignOut(ctx))

	require.Len(t, mirrored, 1)
	assert.Equal(t, "a@example.com", mirrored[0].Email)
}

func TestMemoryGateway_SendPasswordReset(t *testing.T) {
	ctx := context.Background()

	gw := newMemory(MemoryOptions{})
	_, err := gw.CreateAccount(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, gw.SendPasswordReset(ctx, "a@example.com"))
	assert.Equal(t, []string{"a@example.com"}, gw.SentResets())
	assert.True(t, gw.ExposesAccountExistence())

	err = gw.SendPasswordReset(ctx, "nobody@example.com")
	assert.Equal(t, common.CodeEmailNotFound, providerCode(t, err))

	hidden := newMemory(MemoryOptions{HideAccountExistence: true})
	assert.NoError(t, hidden.SendPasswordReset(ctx, "nobody@example.com"))
	assert.False(t, hidden.ExposesAccountExistence())
	assert.Empty(t, hidden.SentResets())
}

func TestMemoryGateway_PhoneChallenge(t *testing.T) {
	ctx := context.Background()
	gw := newMemory(MemoryOptions{})
	defer gw.Close()

	_, err := gw.RequestCode(ctx, "2025550123")
	require.Error(t, err)

	handle, err := gw.RequestCode(ctx, "+12025550123")
	require.NoError(t, err)

	_, err = gw.Confirm(ctx, handle, "000000")
	assert.Equal(t, common.CodeInvalidCode, providerCode(t, err))

	user, err := gw.Confirm(ctx, handle, "123456")
	require.NoError(t, err, "a wrong attempt keeps the handle usable")
	assert.Equal(t, "+12025550123", user.PhoneNumber)
	assert.Equal(t, "phone", user.ProviderID)

	_, err = gw.Confirm(ctx, handle, "123456")
	assert.Equal(t, common.CodeInvalidSessionInfo, providerCode(t, err), "a consumed handle is never accepted again")

	// Signing in with the same number again reuses the account.
	handle2, err := gw.RequestCode(ctx, "+12025550123")
	require.NoError(t, err)
	again, err := gw.Confirm(ctx, handle2, "123456")
	require.NoError(t, err)
	assert.Equal(t, user.UID, again.UID)
}

func TestMemoryGateway_NewRequestDiscardsPriorHandle(t *testing.T) {
	ctx := context.Background()
	gw := newMemory(MemoryOptions{})

	first, err := gw.RequestCode(ctx, "+12025550123")
	require.NoError(t, err)
	second, err := gw.RequestCode(ctx, "+12025550123")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = gw.Confirm(ctx, first, "123456")
	assert.Equal(t, common.KindNoActiveChallenge, common.MapError(err).Kind)

	_, err = gw.Confirm(ctx, second, "123456")
	assert.NoError(t, err)
}

func TestMemoryGateway_ConcurrentConfirmIsSingleUse(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		gw := newMemory(MemoryOptions{})
		handle, err := gw.RequestCode(ctx, "+12025550123")
		require.NoError(t, err)

		var confirmed, rejected atomic.Int32
		start := make(chan struct{})
		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := gw.Confirm(ctx, handle, "123456"); err == nil {
					confirmed.Add(1)
				} else if common.MapError(err).Kind == common.KindNoActiveChallenge {
					rejected.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, confirmed.Load(), "iteration %d", i)
		require.EqualValues(t, 7, rejected.Load(), "iteration %d", i)
	}
}

func TestMemoryGateway_ChallengeExpiry(t *testing.T) {
	ctx := context.Background()
	gw := newMemory(MemoryOptions{ChallengeTTL: 10 * time.Millisecond})

	handle, err := gw.RequestCode(ctx, "+12025550123")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, err = gw.Confirm(ctx, handle, "123456")
	assert.Equal(t, common.CodeSessionExpired, providerCode(t, err))

	_, err = gw.Confirm(ctx, handle, "123456")
	assert.Equal(t, common.CodeInvalidSessionInfo, providerCode(t, err))
}

func TestMemoryGateway_FederatedSignIn(t *testing.T) {
	ctx := context.Background()

	t.Run("no prompter approves", func(t *testing.T) {
		gw := newMemory(MemoryOptions{})
		user, err := gw.FederatedSignIn(ctx)
		require.NoError(t, err)
		assert.Equal(t, "google.com", user.ProviderID)

		again, err := gw.FederatedSignIn(ctx)
		require.NoError(t, err)
		assert.Equal(t, user.UID, again.UID)
	})

	t.Run("approved consent", func(t *testing.T) {
		gw := newMemory(MemoryOptions{Consent: ConsentFunc(approve)})
		user, err := gw.FederatedSignIn(ctx)
		require.NoError(t, err)
		assert.Equal(t, "learner@gmail.example", user.Email)
	})

	t.Run("dismissed consent", func(t *testing.T) {
		gw := newMemory(MemoryOptions{Consent: ConsentFunc(func(context.Context, string) (string, string, error) {
			return "", "", nil
		})})
		_, err := gw.FederatedSignIn(ctx)
		assert.Equal(t, common.KindUserCancelled, common.MapError(err).Kind)
	})

	t.Run("cancelled context", func(t *testing.T) {
		gw := newMemory(MemoryOptions{Consent: ConsentFunc(func(ctx context.Context, _ string) (string, string, error) {
			return "", "", ctx.Err()
		})})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := gw.FederatedSignIn(cctx)
		assert.Equal(t, common.KindUserCancelled, common.MapError(err).Kind)
	})

	t.Run("state mismatch", func(t *testing.T) {
		gw := newMemory(MemoryOptions{Consent: ConsentFunc(func(context.Context, string) (string, string, error) {
			return "code", "forged", nil
		})})
		_, err := gw.FederatedSignIn(ctx)
		assert.Equal(t, "STATE_MISMATCH", providerCode(t, err))
	})
}
