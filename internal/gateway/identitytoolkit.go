package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// AdminVerifier is the privileged side of the provider, available when a
// service account is configured.
type AdminVerifier interface {
	// VerifyIDToken checks the token signature and returns the user it names.
	VerifyIDToken(ctx context.Context, idToken string) (*domain.ProviderUser, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	UserExists(ctx context.Context, email string) (bool, error)
}

// IdentityToolkitOptions configures the Identity Toolkit gateway.
type IdentityToolkitOptions struct {
	APIKey         string
	Admin          AdminVerifier
	Consent        ConsentPrompter
	OAuth          *oauth2.Config
	RecaptchaToken string
	// ClientOptions are appended after the API key, e.g. option.WithEndpoint in tests.
	ClientOptions []option.ClientOption
}

// IdentityToolkitGateway talks to the Google Identity Toolkit REST API, the
// backend of Firebase Authentication. The push channel is driven locally by the
// results of the calls it makes, the way the Firebase client SDK does it.
type IdentityToolkitGateway struct {
	svc    *identitytoolkit.Service
	opts   IdentityToolkitOptions
	hub    *listenerHub
	logger *zap.Logger
}

// NewIdentityToolkitGateway creates the REST client.
func NewIdentityToolkitGateway(ctx context.Context, opts IdentityToolkitOptions, logger *zap.Logger) (*IdentityToolkitGateway, error) {
	clientOpts := append([]option.ClientOption{option.WithAPIKey(opts.APIKey)}, opts.ClientOptions...)
	svc, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		logger.Error("Failed to create Identity Toolkit client", zap.Error(err))
		return nil, fmt.Errorf("error creating identity toolkit client: %w", err)
	}
	return &IdentityToolkitGateway{
		svc:    svc,
		opts:   opts,
		hub:    newListenerHub(),
		logger: logger.Named("IdentityToolkitGateway"),
	}, nil
}

func (g *IdentityToolkitGateway) CreateAccount(ctx context.Context, email, password string) (*domain.ProviderUser, error) {
	resp, err := g.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, g.translate("signupNewUser", err)
	}
	user, err := g.resolveUser(ctx, &domain.ProviderUser{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		ProviderID:  "password",
		IDToken:     resp.IdToken,
	})
	if err != nil {
		return nil, err
	}
	g.hub.publish(user)
	return user, nil
}

func (g *IdentityToolkitGateway) UpdateDisplayName(ctx context.Context, user *domain.ProviderUser, displayName string) (*domain.ProviderUser, error) {
	if user == nil || user.IDToken == "" {
		return nil, common.NewProviderError(common.CodeUserNotFound, "no signed-in user to update")
	}
	resp, err := g.svc.Relyingparty.SetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{
		IdToken:           user.IDToken,
		DisplayName:       displayName,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, g.translate("setAccountInfo", err)
	}
	updated := *user
	updated.DisplayName = resp.DisplayName
	if resp.IdToken != "" {
		updated.IDToken = resp.IdToken
	}
	if cur := g.hub.currentUser(); cur != nil && cur.UID == updated.UID {
		g.hub.publish(&updated)
	}
	return &updated, nil
}

func (g *IdentityToolkitGateway) Authenticate(ctx context.Context, email, password string) (*domain.ProviderUser, error) {
	resp, err := g.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, g.translate("verifyPassword", err)
	}
	user, err := g.resolveUser(ctx, &domain.ProviderUser{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		ProviderID:  "password",
		IDToken:     resp.IdToken,
	})
	if err != nil {
		return nil, err
	}
	g.hub.publish(user)
	return user, nil
}

// SignOut drops the local session first, then revokes refresh tokens when an
// admin verifier is configured.
func (g *IdentityToolkitGateway) SignOut(ctx context.Context) error {
	cur := g.hub.currentUser()
	g.hub.publish(nil)
	if cur == nil || g.opts.Admin == nil {
		return nil
	}
	if err := g.opts.Admin.RevokeRefreshTokens(ctx, cur.UID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

func (g *IdentityToolkitGateway) SendPasswordReset(ctx context.Context, email string) error {
	if g.opts.Admin != nil {
		exists, err := g.opts.Admin.UserExists(ctx, email)
		if err != nil {
			return err
		}
		if !exists {
			return common.NewProviderError(common.CodeEmailNotFound, "")
		}
	}
	_, err := g.svc.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "PASSWORD_RESET",
		Email:       email,
	}).Context(ctx).Do()
	if err != nil {
		return g.translate("getOobConfirmationCode", err)
	}
	return nil
}

// ExposesAccountExistence is true only with an admin verifier; the public API
// hides unknown addresses when email enumeration protection is on.
func (g *IdentityToolkitGateway) ExposesAccountExistence() bool {
	return g.opts.Admin != nil
}

func (g *IdentityToolkitGateway) FederatedSignIn(ctx context.Context) (*domain.ProviderUser, error) {
	if g.opts.OAuth == nil {
		return nil, fmt.Errorf("federated sign-in is not configured")
	}
	authURL := func(state string) string {
		return g.opts.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	}
	consent, err := runConsent(ctx, g.opts.Consent, g.opts.OAuth, authURL, g.logger)
	if err != nil {
		return nil, err
	}

	postBody := url.Values{"providerId": {"google.com"}}
	if consent.IDToken != "" {
		postBody.Set("id_token", consent.IDToken)
	} else {
		postBody.Set("access_token", consent.Token.AccessToken)
	}
	resp, err := g.svc.Relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody:          postBody.Encode(),
		RequestUri:        g.opts.OAuth.RedirectURL,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, g.translate("verifyAssertion", err)
	}
	user, err := g.resolveUser(ctx, &domain.ProviderUser{
		UID:         resp.LocalId,
		Email:       resp.Email,
		DisplayName: resp.DisplayName,
		ProviderID:  "google.com",
		IDToken:     resp.IdToken,
	})
	if err != nil {
		return nil, err
	}
	g.hub.publish(user)
	return user, nil
}

func (g *IdentityToolkitGateway) Subscribe(onChange ChangeFunc) func() {
	return g.hub.subscribe(onChange)
}

func (g *IdentityToolkitGateway) RequestCode(ctx context.Context, phoneNumber string) (domain.ChallengeHandle, error) {
	resp, err := g.svc.Relyingparty.SendVerificationCode(&identitytoolkit.IdentitytoolkitRelyingpartySendVerificationCodeRequest{
		PhoneNumber:    phoneNumber,
		RecaptchaToken: g.opts.RecaptchaToken,
	}).Context(ctx).Do()
	if err != nil {
		return "", g.translate("sendVerificationCode", err)
	}
	return domain.ChallengeHandle(resp.SessionInfo), nil
}

func (g *IdentityToolkitGateway) Confirm(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderUser, error) {
	resp, err := g.svc.Relyingparty.VerifyPhoneNumber(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPhoneNumberRequest{
		SessionInfo: string(handle),
		Code:        code,
	}).Context(ctx).Do()
	if err != nil {
		return nil, g.translate("verifyPhoneNumber", err)
	}
	user, err := g.resolveUser(ctx, &domain.ProviderUser{
		UID:         resp.LocalId,
		PhoneNumber: resp.PhoneNumber,
		ProviderID:  "phone",
		IDToken:     resp.IdToken,
	})
	if err != nil {
		return nil, err
	}
	g.hub.publish(user)
	return user, nil
}

// resolveUser fills fields the REST response left out. A verified admin view
// wins over unverified token claims.
func (g *IdentityToolkitGateway) resolveUser(ctx context.Context, user *domain.ProviderUser) (*domain.ProviderUser, error) {
	if user.IDToken == "" {
		return user, nil
	}
	if g.opts.Admin != nil {
		verified, err := g.opts.Admin.VerifyIDToken(ctx, user.IDToken)
		if err != nil {
			return nil, err
		}
		verified.IDToken = user.IDToken
		if verified.ProviderID == "" {
			verified.ProviderID = user.ProviderID
		}
		return verified, nil
	}
	claims, err := claimsFromIDToken(user.IDToken)
	if err != nil {
		g.logger.Warn("Could not decode ID token claims", zap.Error(err))
		return user, nil
	}
	mergeClaims(user, claims)
	return user, nil
}

// translate turns googleapi errors into ProviderErrors keyed by the API's code.
func (g *IdentityToolkitGateway) translate(call string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		g.logger.Warn("Identity Toolkit call failed", zap.String("call", call), zap.Error(err))
		return fmt.Errorf("%s: %w", call, err)
	}
	message := apiErr.Message
	if message == "" && len(apiErr.Errors) > 0 {
		message = apiErr.Errors[0].Message
	}
	code := common.ParseProviderCode(message)
	g.logger.Debug("Identity Toolkit rejected call", zap.String("call", call), zap.String("code", code), zap.Int("status", apiErr.Code))
	return &common.ProviderError{Code: code, Message: message, Err: err}
}
