package jobs

import (
	"sync"
	"sync/atomic"
	"time"

	"learnapp_auth/internal/config"
	"learnapp_auth/internal/platform/metrics"
	"learnapp_auth/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	pollResultFound   = "found"
	pollResultEmpty   = "empty"
	pollResultSkipped = "skipped"

	stopTimeout = 10 * time.Second
)

// everySchedule fires at a fixed interval. cron.Every rounds to whole seconds,
// which is too coarse for the poll interval.
type everySchedule struct {
	interval time.Duration
}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.interval)
}

// IdentityPoll periodically reads an IdentitySlot until an identity shows up,
// for platforms where push delivery of identity changes is unreliable.
type IdentityPoll struct {
	slot     IdentitySlot
	store    *store.Store
	interval time.Duration
	metrics  *metrics.Recorder
	logger   *zap.Logger
}

// NewIdentityPoll creates a poll over slot that writes into st.
func NewIdentityPoll(slot IdentitySlot, st *store.Store, cfg *config.Config, rec *metrics.Recorder, logger *zap.Logger) *IdentityPoll {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &IdentityPoll{
		slot:     slot,
		store:    st,
		interval: interval,
		metrics:  rec,
		logger:   logger.Named("IdentityPoll"),
	}
}

// Activate checks the slot once and, if it is empty, keeps checking every
// interval until an identity is found, the store reports signed in, or the
// returned handle is stopped. Nothing runs if the store is already signed in.
func (p *IdentityPoll) Activate() *PollHandle {
	h := newPollHandle(p.logger)

	if p.store.Snapshot().IsSignedIn() {
		p.metrics.ObservePollCheck(pollResultSkipped)
		h.finish()
		return h
	}
	if p.check() {
		h.finish()
		return h
	}

	cronLog := NewCronLogger(p.logger.Named("cron"))
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	scheduler.Schedule(everySchedule{interval: p.interval}, cron.FuncJob(func() {
		if h.halted.Load() {
			return
		}
		if p.check() {
			h.halt()
		}
	}))

	// halt may be called by the listener or a tick as soon as either exists, so
	// the handle is populated under its lock.
	h.mu.Lock()
	h.scheduler = scheduler
	// The push observer may win the race; stop polling as soon as it does.
	h.unsubscribe = p.store.Subscribe(func(st store.State) {
		if st.IsSignedIn() {
			h.halt()
		}
	})
	scheduler.Start()
	h.mu.Unlock()

	p.logger.Debug("Identity poll scheduled", zap.Duration("interval", p.interval))
	return h
}

// check runs one poll step and reports whether polling is finished.
func (p *IdentityPoll) check() bool {
	if p.store.Snapshot().IsSignedIn() {
		p.metrics.ObservePollCheck(pollResultSkipped)
		return true
	}
	identity := p.slot.Load()
	if identity == nil {
		p.metrics.ObservePollCheck(pollResultEmpty)
		return false
	}
	p.metrics.ObservePollCheck(pollResultFound)
	p.store.SetIdentity(identity)
	p.logger.Info("Identity found by polling fallback", zap.String("uid", identity.ID))
	return true
}

// PollHandle is the cancellation token of one activated poll.
type PollHandle struct {
	logger *zap.Logger

	mu          sync.Mutex
	scheduler   *cron.Cron
	unsubscribe func()
	stopped     <-chan struct{}

	halted   atomic.Bool
	haltOnce sync.Once
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func newPollHandle(logger *zap.Logger) *PollHandle {
	return &PollHandle{logger: logger, done: make(chan struct{})}
}

// halt stops scheduling further checks without waiting, so it is safe to call
// from inside a running check.
func (h *PollHandle) halt() {
	h.haltOnce.Do(func() {
		h.halted.Store(true)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.unsubscribe != nil {
			h.unsubscribe()
		}
		if h.scheduler != nil {
			h.stopped = h.scheduler.Stop().Done()
		}
	})
}

// finish marks a handle that never scheduled anything as stopped.
func (h *PollHandle) finish() {
	h.halt()
	h.doneOnce.Do(func() { close(h.done) })
}

// Stop cancels the poll and waits for any running check to return. It is
// idempotent and safe on a handle whose poll already finished.
func (h *PollHandle) Stop() {
	h.halt()
	h.stopOnce.Do(func() {
		h.mu.Lock()
		stopped := h.stopped
		h.mu.Unlock()
		if stopped != nil {
			select {
			case <-stopped:
				h.logger.Debug("Identity poll scheduler stopped")
			case <-time.After(stopTimeout):
				h.logger.Warn("Identity poll scheduler stop timed out")
			}
		}
		h.doneOnce.Do(func() { close(h.done) })
	})
}

// Halted reports whether the poll has stopped scheduling checks.
func (h *PollHandle) Halted() bool {
	return h.halted.Load()
}

// Done is closed once Stop has returned or the poll finished without scheduling.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}
