package jobs

import (
	"learnapp_auth/internal/config"
	"learnapp_auth/internal/platform/metrics"
	"learnapp_auth/internal/store"

	"go.uber.org/zap"
)

// FallbackStrategy decides what a UI surface does, besides the push observer,
// to notice identity changes.
type FallbackStrategy interface {
	Name() string
	// Activate starts the fallback for one surface. The caller must Stop the handle
	// when the surface goes away.
	Activate() *PollHandle
}

// PushOnlyStrategy trusts push delivery and never polls.
type PushOnlyStrategy struct {
	logger *zap.Logger
}

func (PushOnlyStrategy) Name() string { return "push-only" }

func (s PushOnlyStrategy) Activate() *PollHandle {
	h := newPollHandle(s.logger)
	h.finish()
	return h
}

// PollingStrategy runs an IdentityPoll per activation.
type PollingStrategy struct {
	poll *IdentityPoll
}

func (PollingStrategy) Name() string { return "polling" }

func (s PollingStrategy) Activate() *PollHandle {
	return s.poll.Activate()
}

// NewFallbackStrategy picks polling when the platform's push delivery is
// unreliable and a slot to poll exists, and push-only otherwise.
func NewFallbackStrategy(cfg *config.Config, slot IdentitySlot, st *store.Store, rec *metrics.Recorder, logger *zap.Logger) FallbackStrategy {
	logger = logger.Named("FallbackStrategy")
	if !cfg.PushDeliveryUnreliable {
		return PushOnlyStrategy{logger: logger}
	}
	if slot == nil {
		logger.Warn("Push delivery marked unreliable but no identity slot is available; polling disabled")
		return PushOnlyStrategy{logger: logger}
	}
	logger.Info("Push delivery unreliable; polling fallback enabled", zap.Duration("interval", cfg.PollInterval))
	return PollingStrategy{poll: NewIdentityPoll(slot, st, cfg, rec, logger)}
}
