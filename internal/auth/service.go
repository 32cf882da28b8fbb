// File: internal/auth/service.go
package auth

import (
	"context"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/config"
	"learnapp_auth/internal/domain"
	"learnapp_auth/internal/gateway"
	"learnapp_auth/internal/platform/metrics"
	"learnapp_auth/internal/store"

	"go.uber.org/zap"
)

// Operation names used in logs and metrics.
const (
	OpSignup        = "signup"
	OpLogin         = "login"
	OpLogout        = "logout"
	OpResetPassword = "reset_password"
	OpFederated     = "federated_login"
	OpSendCode      = "send_code"
	OpVerifyCode    = "verify_code"
)

// Service is the credential action dispatcher. Every action records its outcome
// in the session store and also returns it.
type Service interface {
	Signup(ctx context.Context, email, password, displayName string) (*domain.Identity, error)
	Login(ctx context.Context, email, password string) (*domain.Identity, error)
	Logout(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	LoginWithFederatedProvider(ctx context.Context) (*domain.Identity, error)
	ClearError()
}

// ServiceImplementation implements Service on top of a gateway.Gateway.
type ServiceImplementation struct {
	gw      gateway.Gateway
	store   *store.Store
	cfg     *config.Config
	metrics *metrics.Recorder
	logger  *zap.Logger
}

var _ Service = (*ServiceImplementation)(nil)

// NewService creates a new dispatcher.
func NewService(
	gw gateway.Gateway,
	st *store.Store,
	cfg *config.Config,
	rec *metrics.Recorder,
	logger *zap.Logger,
) *ServiceImplementation {
	return &ServiceImplementation{
		gw:      gw,
		store:   st,
		cfg:     cfg,
		metrics: rec,
		logger:  logger.Named("AuthService"),
	}
}

// Signup creates an account and then attaches the display name to it. The push
// observer, not this call, moves the store to signed in.
func (s *ServiceImplementation) Signup(ctx context.Context, email, password, displayName string) (*domain.Identity, error) {
	s.store.BeginAction()

	user, err := s.gw.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, s.fail(OpSignup, err)
	}
	if displayName != "" {
		user, err = s.gw.UpdateDisplayName(ctx, user, displayName)
		if err != nil {
			s.logger.Warn("Account created but display name could not be set", zap.Error(err))
			return nil, s.fail(OpSignup, err)
		}
	}

	s.succeed(OpSignup)
	s.logger.Info("User signed up", zap.String("uid", user.UID))
	return domain.IdentityFromProvider(user), nil
}

// Login signs in with email and password.
func (s *ServiceImplementation) Login(ctx context.Context, email, password string) (*domain.Identity, error) {
	return s.signIn(ctx, OpLogin, func(ctx context.Context) (*domain.ProviderUser, error) {
		return s.gw.Authenticate(ctx, email, password)
	})
}

// LoginWithFederatedProvider runs the provider's interactive consent flow.
func (s *ServiceImplementation) LoginWithFederatedProvider(ctx context.Context) (*domain.Identity, error) {
	return s.signIn(ctx, OpFederated, s.gw.FederatedSignIn)
}

func (s *ServiceImplementation) signIn(ctx context.Context, op string, call func(context.Context) (*domain.ProviderUser, error)) (*domain.Identity, error) {
	s.store.BeginAction()
	user, err := call(ctx)
	if err != nil {
		return nil, s.fail(op, err)
	}
	s.succeed(op)
	s.logger.Info("User signed in", zap.String("operation", op), zap.String("uid", user.UID))
	return domain.IdentityFromProvider(user), nil
}

// Logout always leaves the store signed out, even when the provider call fails
// or another action is still in flight. It never returns an error.
func (s *ServiceImplementation) Logout(ctx context.Context) error {
	if err := s.gw.SignOut(ctx); err != nil {
		s.logger.Warn("Provider sign out failed; signing out locally", zap.Error(err))
		s.metrics.ObserveOperation(OpLogout, metrics.OutcomeFailure, string(common.MapError(err).Kind))
	} else {
		s.metrics.ObserveOperation(OpLogout, metrics.OutcomeSuccess, "")
	}
	s.store.SignOut()
	return nil
}

// ResetPassword asks the provider to send a reset notification. An unknown
// address is only reported when the provider can tell and disclosure is enabled.
func (s *ServiceImplementation) ResetPassword(ctx context.Context, email string) error {
	s.store.BeginAction()
	err := s.gw.SendPasswordReset(ctx, email)
	if err != nil {
		authErr := common.MapError(err)
		if authErr.Kind != common.KindUserNotFound || s.discloseUnknown() {
			return s.fail(OpResetPassword, err)
		}
		s.logger.Debug("Password reset requested for unknown address; not disclosed")
	}
	s.succeed(OpResetPassword)
	return nil
}

func (s *ServiceImplementation) discloseUnknown() bool {
	return s.gw.ExposesAccountExistence() && s.cfg.ResetPasswordDiscloseUnknown
}

// ClearError dismisses the current error without touching user or loading.
func (s *ServiceImplementation) ClearError() {
	s.store.ClearError()
}

func (s *ServiceImplementation) succeed(op string) {
	s.store.EndAction()
	s.metrics.ObserveOperation(op, metrics.OutcomeSuccess, "")
}

// fail records err in the store and returns it as an *AuthError wrapping the cause.
func (s *ServiceImplementation) fail(op string, err error) error {
	authErr := common.MapError(err)
	s.store.FailAction(authErr)
	s.metrics.ObserveOperation(op, metrics.OutcomeFailure, string(authErr.Kind))
	if authErr.Kind == common.KindUnknown {
		s.logger.Error("Auth operation failed", zap.String("operation", op), zap.Error(err))
	} else {
		s.logger.Info("Auth operation rejected", zap.String("operation", op), zap.String("kind", string(authErr.Kind)))
	}
	return authErr
}
