// File: internal/auth/phone.go
package auth

import (
	"context"
	"sync"
	"time"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/config"
	"learnapp_auth/internal/domain"
	"learnapp_auth/internal/gateway"
	"learnapp_auth/internal/platform/metrics"
	"learnapp_auth/internal/store"

	"go.uber.org/zap"
)

// ChallengeState is the phase of the phone verification flow.
type ChallengeState int

const (
	ChallengeIdle ChallengeState = iota
	ChallengeSent
	ChallengeVerified
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengeSent:
		return "sent"
	case ChallengeVerified:
		return "verified"
	default:
		return "idle"
	}
}

// PhoneChallenge drives phone-number sign-in: send a code, then verify it. The
// live challenge handle is kept in the session store as its confirmation result,
// so signing out clears it too.
type PhoneChallenge struct {
	gw      gateway.Gateway
	store   *store.Store
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Recorder
	logger  *zap.Logger

	mu       sync.Mutex
	verified domain.ChallengeHandle
}

// NewPhoneChallenge creates an idle challenge machine.
func NewPhoneChallenge(gw gateway.Gateway, st *store.Store, cfg *config.Config, rec *metrics.Recorder, logger *zap.Logger) *PhoneChallenge {
	return &PhoneChallenge{
		gw:      gw,
		store:   st,
		ttl:     cfg.PhoneChallengeTTL,
		now:     time.Now,
		metrics: rec,
		logger:  logger.Named("PhoneChallenge"),
	}
}

// State reports the current phase.
func (p *PhoneChallenge) State() ChallengeState {
	snap := p.store.Snapshot()
	if snap.ConfirmationResult != nil {
		return ChallengeSent
	}
	p.mu.Lock()
	verified := p.verified != ""
	p.mu.Unlock()
	if verified && snap.IsSignedIn() {
		return ChallengeVerified
	}
	return ChallengeIdle
}

// SendCode requests a verification code for phoneNumber, which the caller has
// already validated as E.164. Any previous challenge is discarded.
func (p *PhoneChallenge) SendCode(ctx context.Context, phoneNumber string) (*domain.PhoneChallenge, error) {
	p.store.BeginAction()

	handle, err := p.gw.RequestCode(ctx, phoneNumber)
	if err != nil {
		return nil, p.fail(OpSendCode, err)
	}

	now := p.now()
	challenge := &domain.PhoneChallenge{
		PhoneNumber: phoneNumber,
		Handle:      handle,
		CreatedAt:   now,
	}
	if p.ttl > 0 {
		challenge.ExpiresAt = now.Add(p.ttl)
	}

	if prev := p.store.Snapshot().ConfirmationResult; prev != nil {
		p.logger.Debug("Discarding previous phone challenge", zap.String("phoneNumber", prev.PhoneNumber))
	}
	p.mu.Lock()
	p.verified = ""
	p.mu.Unlock()
	p.store.SetChallenge(challenge)
	p.store.EndAction()
	p.metrics.ObserveOperation(OpSendCode, metrics.OutcomeSuccess, "")
	p.logger.Info("Verification code sent", zap.String("phoneNumber", phoneNumber))
	return challenge, nil
}

// VerifyCode confirms code against the live challenge. A wrong code keeps the
// challenge so the user can retry; success or expiry consumes it.
func (p *PhoneChallenge) VerifyCode(ctx context.Context, code string) (*domain.Identity, error) {
	cur := p.store.Snapshot().ConfirmationResult
	if cur == nil {
		return nil, p.fail(OpVerifyCode, common.NewAuthError(common.KindNoActiveChallenge, nil))
	}
	return p.verify(ctx, cur.Handle, code)
}

// verify confirms code for a specific handle. Handles that are no longer the live
// challenge are rejected without reaching the gateway.
func (p *PhoneChallenge) verify(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.Identity, error) {
	cur := p.store.Snapshot().ConfirmationResult
	if cur == nil || cur.Handle != handle {
		return nil, p.fail(OpVerifyCode, common.NewAuthError(common.KindNoActiveChallenge, nil))
	}
	if cur.Expired(p.now()) {
		p.store.ClearChallenge(handle)
		return nil, p.fail(OpVerifyCode, common.NewAuthError(common.KindChallengeExpired, nil))
	}

	p.store.BeginAction()
	user, err := p.gw.Confirm(ctx, handle, code)
	if err != nil {
		switch common.KindOf(common.MapError(err)) {
		case common.KindChallengeExpired, common.KindNoActiveChallenge:
			p.store.ClearChallenge(handle)
		}
		return nil, p.fail(OpVerifyCode, err)
	}

	p.mu.Lock()
	p.verified = handle
	p.mu.Unlock()
	p.store.ClearChallenge(handle)
	p.store.EndAction()
	p.metrics.ObserveOperation(OpVerifyCode, metrics.OutcomeSuccess, "")
	p.logger.Info("Phone number verified", zap.String("uid", user.UID))
	return domain.IdentityFromProvider(user), nil
}

func (p *PhoneChallenge) fail(op string, err error) error {
	authErr := common.MapError(err)
	p.store.FailAction(authErr)
	p.metrics.ObserveOperation(op, metrics.OutcomeFailure, string(authErr.Kind))
	p.logger.Info("Phone challenge step rejected", zap.String("operation", op), zap.String("kind", string(authErr.Kind)))
	return authErr
}
