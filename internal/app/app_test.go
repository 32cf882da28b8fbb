package app

import (
	"context"
	"testing"
	"time"

	"learnapp_auth/internal/config"
	"learnapp_auth/internal/domain"
	"learnapp_auth/internal/gateway"
	"learnapp_auth/internal/jobs"
	"learnapp_auth/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	app     *App
	gw      *gateway.MemoryGateway
	metrics *metrics.Recorder
}

func newHarness(t *testing.T, unreliable bool) *harness {
	t.Helper()
	cfg := &config.Config{
		GatewayMode:            config.GatewayModeMemory,
		PollInterval:           5 * time.Millisecond,
		PhoneChallengeTTL:      time.Minute,
		PushDeliveryUnreliable: unreliable,
	}
	rec, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	gw := gateway.NewMemoryGateway(gateway.MemoryOptions{BcryptCost: bcrypt.MinCost}, zap.NewNop())
	a := New(cfg, zap.NewNop(), gw, rec, ProvideIdentitySlot(cfg))
	t.Cleanup(func() {
		a.Shutdown()
		gw.Close()
		jobs.ClearMockIdentity()
	})
	return &harness{app: a, gw: gw, metrics: rec}
}

func TestStart_ResolvesLoading(t *testing.T) {
	h := newHarness(t, false)
	assert.True(t, h.app.Store().Snapshot().Loading, "loading until the provider answers")

	h.app.Start()
	h.app.Start()

	snap := h.app.Store().Snapshot()
	assert.False(t, snap.Loading)
	assert.False(t, snap.IsSignedIn())
	assert.Equal(t, 1, h.gw.ListenerCount())
	assert.Equal(t, "push-only", h.app.Fallback().Name())
}

func TestSignup_FlowsThroughObserver(t *testing.T) {
	h := newHarness(t, false)
	h.app.Start()

	identity, err := h.app.Auth().Signup(context.Background(), "ada@example.com", "secret1", "Ada")
	require.NoError(t, err)

	snap := h.app.Store().Snapshot()
	require.True(t, snap.IsSignedIn())
	assert.Equal(t, identity.ID, snap.User.ID)
	assert.Equal(t, "Ada", *snap.User.DisplayName)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.SignedIn()))

	mirrored := jobs.MockIdentitySlot{}.Load()
	require.NotNil(t, mirrored, "memory mode mirrors the provider user into the mock slot")
	assert.Equal(t, identity.ID, mirrored.ID)

	require.NoError(t, h.app.Auth().Logout(context.Background()))
	assert.False(t, h.app.Store().Snapshot().IsSignedIn())
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.SignedIn()))
	assert.Nil(t, jobs.MockIdentitySlot{}.Load())
}

func TestMountSurface_PollingPicksUpSlotIdentity(t *testing.T) {
	h := newHarness(t, true)
	h.app.Start()
	require.Equal(t, "polling", h.app.Fallback().Name())

	unmount := h.app.MountSurface("home")
	assert.Equal(t, 1, h.app.MountedSurfaces())

	// The identity reaches the slot without a push notification.
	jobs.SetMockIdentity(&domain.Identity{ID: "uid-polled", DisplayName: domain.StringPtr("Polled")})

	require.Eventually(t, func() bool { return h.app.Store().Snapshot().IsSignedIn() }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, "uid-polled", h.app.Store().Snapshot().User.ID)

	unmount()
	unmount()
	assert.Equal(t, 0, h.app.MountedSurfaces())
}

func TestMountSurface_UnmountCancelsPoll(t *testing.T) {
	h := newHarness(t, true)
	h.app.Start()

	unmountA := h.app.MountSurface("home")
	unmountB := h.app.MountSurface("settings")
	assert.Equal(t, 2, h.app.MountedSurfaces())

	unmountA()
	assert.Equal(t, 1, h.app.MountedSurfaces())
	unmountB()
	assert.Equal(t, 0, h.app.MountedSurfaces())
	assert.False(t, h.app.Store().Snapshot().IsSignedIn())
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, true)
	h.app.Start()
	unmount := h.app.MountSurface("home")
	require.Equal(t, 1, h.gw.ListenerCount())

	h.app.Shutdown()
	h.app.Shutdown()

	assert.Equal(t, 0, h.gw.ListenerCount(), "the observer subscription is released")
	assert.Equal(t, 0, h.app.MountedSurfaces())
	unmount()

	// Provider activity after shutdown no longer reaches the store.
	_, err := h.gw.CreateAccount(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.False(t, h.app.Store().Snapshot().IsSignedIn())
	assert.Nil(t, jobs.MockIdentitySlot{}.Load())

	noop := h.app.MountSurface("late")
	assert.Equal(t, 0, h.app.MountedSurfaces())
	noop()
}

func TestProvideIdentitySlot(t *testing.T) {
	assert.NotNil(t, ProvideIdentitySlot(&config.Config{GatewayMode: config.GatewayModeMemory}))
	assert.Nil(t, ProvideIdentitySlot(&config.Config{GatewayMode: config.GatewayModeIdentityToolkit}))

	mixed := &config.Config{GatewayMode: "Memory"}
	mixed.Normalize()
	assert.NotNil(t, ProvideIdentitySlot(mixed), "a mixed-case mode still selects the mock slot once normalized")
}
