// File: cmd/authctl/wire.go
//go:build wireinject
// +build wireinject

package main

import (
	"learnapp_auth/internal/app"
	"learnapp_auth/internal/config"
	"learnapp_auth/internal/firebase"
	"learnapp_auth/internal/gateway"
	"learnapp_auth/internal/platform/logger"

	"github.com/google/wire"
)

// initializeSession is the main Wire injector.
func initializeSession(cfg *config.Config, consent gateway.ConsentPrompter) (*session, func(), error) {
	wire.Build(
		// Platform Layer
		logger.New,
		provideRegistry,
		provideMetrics,

		// Firebase admin side (optional)
		firebase.NewFirebaseService,
		firebase.AdminVerifier,

		// Identity provider
		gateway.New,

		// Application Layer
		app.ProvideIdentitySlot,
		app.New,
		wire.Struct(new(session), "*"),
	)
	return nil, nil, nil
}
