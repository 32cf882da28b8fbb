// File: internal/app/app.go
package app

import (
	"sync"

	"learnapp_auth/internal/auth"
	"learnapp_auth/internal/config"
	"learnapp_auth/internal/domain"
	"learnapp_auth/internal/gateway"
	"learnapp_auth/internal/jobs"
	"learnapp_auth/internal/observer"
	"learnapp_auth/internal/platform/metrics"
	"learnapp_auth/internal/store"

	"go.uber.org/zap"
)

// App owns one auth session: its store, the push observer, the dispatcher, the
// phone challenge machine and the fallback polls of mounted surfaces.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	gw       gateway.Gateway
	metrics  *metrics.Recorder
	store    *store.Store
	observer *observer.SessionObserver
	auth     *auth.ServiceImplementation
	phone    *auth.PhoneChallenge
	fallback jobs.FallbackStrategy

	mu          sync.Mutex
	started     bool
	stopped     bool
	surfaces    map[uint64]*mountedSurface
	nextSurface uint64
	unsubs      []func()

	shutdownOnce sync.Once
}

type mountedSurface struct {
	name   string
	handle *jobs.PollHandle
}

// New creates the session store and every component that writes to it. slot may
// be nil, in which case no surface ever polls.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	gw gateway.Gateway,
	rec *metrics.Recorder,
	slot jobs.IdentitySlot,
) *App {
	st := store.New(logger)
	return &App{
		cfg:      cfg,
		logger:   logger.Named("App"),
		gw:       gw,
		metrics:  rec,
		store:    st,
		observer: observer.New(gw, logger),
		auth:     auth.NewService(gw, st, cfg, rec, logger),
		phone:    auth.NewPhoneChallenge(gw, st, cfg, rec, logger),
		fallback: jobs.NewFallbackStrategy(cfg, slot, st, rec, logger),
		surfaces: make(map[uint64]*mountedSurface),
	}
}

// ProvideIdentitySlot returns the mock identity slot in memory mode and nil
// otherwise; real providers have no slot to poll.
func ProvideIdentitySlot(cfg *config.Config) jobs.IdentitySlot {
	if cfg.GatewayMode == config.GatewayModeMemory {
		return jobs.MockIdentitySlot{}
	}
	return nil
}

// Start attaches the push observer. The store stays loading until the provider
// delivers its first identity signal, which normally happens during Start.
func (a *App) Start() {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	if mg, ok := a.gw.(*gateway.MemoryGateway); ok && a.cfg.GatewayMode == config.GatewayModeMemory {
		mg.MirrorTo(func(u *domain.ProviderUser) {
			jobs.SetMockIdentity(domain.IdentityFromProvider(u))
		})
	}

	unsubMetrics := a.store.Subscribe(func(st store.State) {
		a.metrics.SetSignedIn(st.IsSignedIn())
	})
	unsubObserver := a.observer.Attach(a.store)

	a.mu.Lock()
	a.unsubs = append(a.unsubs, unsubMetrics, unsubObserver)
	a.mu.Unlock()

	a.logger.Info("Auth session started",
		zap.String("gatewayMode", a.cfg.GatewayMode),
		zap.String("fallback", a.fallback.Name()),
	)
}

// MountSurface is called when a UI surface appears. It starts the surface's
// fallback poll, if the platform needs one, and returns the unmount func that
// cancels it. Unmounting twice is harmless.
func (a *App) MountSurface(name string) (unmount func()) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return func() {}
	}
	a.nextSurface++
	id := a.nextSurface
	a.mu.Unlock()

	handle := a.fallback.Activate()

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		handle.Stop()
		return func() {}
	}
	a.surfaces[id] = &mountedSurface{name: name, handle: handle}
	a.mu.Unlock()
	a.logger.Debug("Surface mounted", zap.String("surface", name))

	return func() {
		a.mu.Lock()
		surface, ok := a.surfaces[id]
		delete(a.surfaces, id)
		a.mu.Unlock()
		if !ok {
			return
		}
		surface.handle.Stop()
		a.logger.Debug("Surface unmounted", zap.String("surface", surface.name))
	}
}

// Shutdown cancels every poll and releases the observer subscription. Only the
// first call does anything.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		surfaces := a.surfaces
		a.surfaces = make(map[uint64]*mountedSurface)
		unsubs := a.unsubs
		a.unsubs = nil
		a.mu.Unlock()

		for _, s := range surfaces {
			s.handle.Stop()
		}
		a.observer.Close()
		for _, unsub := range unsubs {
			unsub()
		}
		if mg, ok := a.gw.(*gateway.MemoryGateway); ok {
			mg.MirrorTo(nil)
		}
		a.logger.Info("Auth session shut down", zap.Int("pollsCancelled", len(surfaces)))
	})
}

// Store is the read/subscribe side of the session.
func (a *App) Store() *store.Store { return a.store }

// Auth is the credential action dispatcher.
func (a *App) Auth() auth.Service { return a.auth }

// Phone is the phone challenge machine.
func (a *App) Phone() *auth.PhoneChallenge { return a.phone }

// Fallback reports the active fallback strategy.
func (a *App) Fallback() jobs.FallbackStrategy { return a.fallback }

// MountedSurfaces reports how many surfaces are mounted.
func (a *App) MountedSurfaces() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.surfaces)
}
