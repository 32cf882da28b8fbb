package firebase

import (
	"context"
	"fmt"
	"path/filepath" // For cleaning the path

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"learnapp_auth/internal/config"
	"learnapp_auth/internal/domain"
	"learnapp_auth/internal/gateway"
)

// authClient is the part of *auth.Client the service uses.
type authClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
}

// FirebaseService wraps the Firebase Admin SDK for the checks a client cannot
// make on its own: ID token verification, token revocation, account lookup.
type FirebaseService struct {
	authClient authClient
	logger     *zap.Logger
}

// NewFirebaseService initializes the Firebase Admin SDK. It returns nil, nil when
// no service account key is configured; the admin side is optional.
func NewFirebaseService(cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	if cfg.FirebaseServiceAccountKeyPath == "" {
		logger.Info("Firebase service account key path not configured; admin verification disabled.")
		return nil, nil
	}

	cleanPath := filepath.Clean(cfg.FirebaseServiceAccountKeyPath)
	opt := option.WithCredentialsFile(cleanPath)

	var app *firebase.App
	var err error
	if cfg.FirebaseProjectID != "" {
		conf := &firebase.Config{ProjectID: cfg.FirebaseProjectID}
		app, err = firebase.NewApp(context.Background(), conf, opt)
	} else {
		// If ProjectID is not specified in config, let SDK infer from credentials
		app, err = firebase.NewApp(context.Background(), nil, opt)
	}
	if err != nil {
		logger.Error("Failed to initialize Firebase Admin SDK app", zap.Error(err), zap.String("keyPath", cleanPath))
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Auth(context.Background())
	if err != nil {
		logger.Error("Failed to get Firebase Auth client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firebase Auth client: %w", err)
	}

	logger.Info("Firebase Admin SDK initialized successfully.")
	return newWithClient(client, logger), nil
}

func newWithClient(client authClient, logger *zap.Logger) *FirebaseService {
	return &FirebaseService{authClient: client, logger: logger.Named("FirebaseService")}
}

// AdminVerifier exposes svc to the gateway, keeping a nil service a nil interface.
func AdminVerifier(svc *FirebaseService) gateway.AdminVerifier {
	if svc == nil {
		return nil
	}
	return svc
}

// VerifyIDToken verifies a Firebase ID token and returns the user it names.
func (s *FirebaseService) VerifyIDToken(ctx context.Context, idToken string) (*domain.ProviderUser, error) {
	if idToken == "" {
		return nil, fmt.Errorf("ID token must not be empty")
	}

	token, err := s.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.logger.Warn("Firebase ID token verification failed", zap.Error(err))
		return nil, fmt.Errorf("failed to verify Firebase ID token: %w", err)
	}

	s.logger.Debug("Firebase ID token verified successfully", zap.String("uid", token.UID))
	return UserFromToken(token), nil
}

// RevokeRefreshTokens revokes all refresh tokens for a given user.
func (s *FirebaseService) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := s.authClient.RevokeRefreshTokens(ctx, uid); err != nil {
		s.logger.Error("Failed to revoke refresh tokens", zap.Error(err), zap.String("uid", uid))
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	s.logger.Info("Successfully revoked refresh tokens for user", zap.String("uid", uid))
	return nil
}

// UserExists reports whether an account is registered for email.
func (s *FirebaseService) UserExists(ctx context.Context, email string) (bool, error) {
	if _, err := s.authClient.GetUserByEmail(ctx, email); err != nil {
		if auth.IsUserNotFound(err) {
			return false, nil
		}
		s.logger.Error("Failed to look up user by email", zap.Error(err))
		return false, fmt.Errorf("failed to look up user: %w", err)
	}
	return true, nil
}

// UserFromToken maps verified token claims to a provider user record.
func UserFromToken(token *auth.Token) *domain.ProviderUser {
	if token == nil {
		return nil
	}
	claim := func(key string) string {
		if v, ok := token.Claims[key].(string); ok {
			return v
		}
		return ""
	}
	return &domain.ProviderUser{
		UID:         token.UID,
		DisplayName: claim("name"),
		Email:       claim("email"),
		PhoneNumber: claim("phone_number"),
		ProviderID:  token.Firebase.SignInProvider,
	}
}
