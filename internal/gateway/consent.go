package gateway

import (
	"context"
	"errors"
	"fmt"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/config"
	"learnapp_auth/internal/platform/crypto"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrConsentCancelled is returned by a ConsentPrompter when the user dismisses
// the consent screen.
var ErrConsentCancelled = common.NewProviderError(common.CodeConsentCancelled, "the user dismissed the consent screen")

// ConsentPrompter runs the interactive consent step of federated sign-in: it
// shows authURL to the user and returns the code and state from the redirect.
type ConsentPrompter interface {
	Prompt(ctx context.Context, authURL string) (code, state string, err error)
}

// ConsentFunc adapts a function to ConsentPrompter.
type ConsentFunc func(ctx context.Context, authURL string) (code, state string, err error)

func (f ConsentFunc) Prompt(ctx context.Context, authURL string) (string, string, error) {
	return f(ctx, authURL)
}

// GoogleOAuthConfig builds the OAuth client used for federated sign-in.
func GoogleOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint:     google.Endpoint,
	}
}

// consentResult is what a successful consent round produced.
type consentResult struct {
	Code    string
	Token   *oauth2.Token
	IDToken string
}

// runConsent generates a state, asks the prompter, and checks the state that
// came back. When oauthCfg is non-nil the code is exchanged for tokens.
func runConsent(ctx context.Context, prompter ConsentPrompter, oauthCfg *oauth2.Config, authURL func(state string) string, logger *zap.Logger) (*consentResult, error) {
	if prompter == nil {
		return nil, fmt.Errorf("federated sign-in requires a consent prompter")
	}
	state, err := crypto.GenerateSecureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	code, gotState, err := prompter.Prompt(ctx, authURL(state))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrConsentCancelled
		}
		return nil, err
	}
	if code == "" {
		return nil, ErrConsentCancelled
	}
	if gotState != state {
		logger.Error("OAuth state mismatch", zap.String("received_state", gotState))
		return nil, common.NewProviderError("STATE_MISMATCH", "OAuth state mismatch. Possible CSRF attack.")
	}

	res := &consentResult{Code: code}
	if oauthCfg == nil {
		return res, nil
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Error("Failed to exchange auth code for token", zap.Error(err))
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &common.ProviderError{Code: common.ParseProviderCode(retrieveErr.ErrorCode), Message: retrieveErr.ErrorDescription, Err: err}
		}
		return nil, fmt.Errorf("could not exchange auth code: %w", err)
	}
	res.Token = token
	if idToken, ok := token.Extra("id_token").(string); ok {
		res.IDToken = idToken
	}
	return res, nil
}
