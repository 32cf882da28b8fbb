// Package gateway defines the Identity Provider Gateway consumed by the auth
// session manager, plus an in-memory provider for mock mode and a Google
// Identity Toolkit provider for production.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"learnapp_auth/internal/config"
	"learnapp_auth/internal/domain"

	"go.uber.org/zap"
)

// ChangeFunc receives the provider's current user, or nil on sign-out.
type ChangeFunc func(*domain.ProviderUser)

// Gateway is the remote identity provider. Failures carry a *common.ProviderError
// when the provider reported a coded error.
type Gateway interface {
	CreateAccount(ctx context.Context, email, password string) (*domain.ProviderUser, error)
	UpdateDisplayName(ctx context.Context, user *domain.ProviderUser, displayName string) (*domain.ProviderUser, error)
	Authenticate(ctx context.Context, email, password string) (*domain.ProviderUser, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email string) error
	FederatedSignIn(ctx context.Context) (*domain.ProviderUser, error)

	// Subscribe registers onChange on the push channel. The current user is
	// delivered once immediately after registration.
	Subscribe(onChange ChangeFunc) (unsubscribe func())

	RequestCode(ctx context.Context, phoneNumber string) (domain.ChallengeHandle, error)
	Confirm(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderUser, error)

	// ExposesAccountExistence reports whether SendPasswordReset distinguishes
	// unknown addresses with EMAIL_NOT_FOUND.
	ExposesAccountExistence() bool
}

// New selects the gateway implementation for cfg.GatewayMode.
// admin may be nil when no service account is configured.
func New(cfg *config.Config, logger *zap.Logger, admin AdminVerifier, consent ConsentPrompter) (Gateway, func(), error) {
	switch strings.ToLower(cfg.GatewayMode) {
	case config.GatewayModeMemory:
		gw := NewMemoryGateway(MemoryOptions{
			VerificationCode: cfg.MockVerificationCode,
			ChallengeTTL:     cfg.PhoneChallengeTTL,
			Consent:          consent,
		}, logger)
		return gw, gw.Close, nil
	case config.GatewayModeIdentityToolkit:
		gw, err := NewIdentityToolkitGateway(context.Background(), IdentityToolkitOptions{
			APIKey:  cfg.FirebaseAPIKey,
			Admin:   admin,
			Consent: consent,
			OAuth:   GoogleOAuthConfig(cfg),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return gw, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported gateway mode %q", cfg.GatewayMode)
	}
}
