package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/domain"
	"learnapp_auth/internal/platform/crypto"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	challengeGrace    = time.Minute
	mockConsentURL    = "https://accounts.mock.invalid/o/oauth2/auth"
)

// MemoryOptions configures the in-memory provider used in mock mode and tests.
type MemoryOptions struct {
	// VerificationCode is the one code every phone challenge accepts.
	VerificationCode string
	ChallengeTTL     time.Duration
	// Consent runs the federated consent step; nil approves immediately.
	Consent ConsentPrompter
	// FederatedProfile is the account federated sign-in resolves to.
	FederatedProfile *domain.ProviderUser
	BcryptCost       int
	// HideAccountExistence makes password reset succeed silently for unknown addresses.
	HideAccountExistence bool
}

type memoryAccount struct {
	user         domain.ProviderUser
	passwordHash []byte
}

type pendingChallenge struct {
	phoneNumber string
	expiresAt   time.Time
}

// MemoryGateway is an in-process identity provider. It keeps accounts in memory,
// hashes passwords with bcrypt, and accepts a single designated phone code.
type MemoryGateway struct {
	opts   MemoryOptions
	logger *zap.Logger
	hub    *listenerHub

	mu          sync.Mutex
	accounts    map[string]*memoryAccount // by UID
	emailIndex  map[string]string
	phoneIndex  map[string]string
	phoneHandle map[string]domain.ChallengeHandle
	challenges  *cache.Cache
	resets      []string
}

// NewMemoryGateway creates an empty in-memory provider.
func NewMemoryGateway(opts MemoryOptions, logger *zap.Logger) *MemoryGateway {
	if opts.VerificationCode == "" {
		opts.VerificationCode = "123456"
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = 5 * time.Minute
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.FederatedProfile == nil {
		opts.FederatedProfile = &domain.ProviderUser{
			UID:         "google-oauth2|mock",
			DisplayName: "Mock Google User",
			Email:       "learner@gmail.example",
			ProviderID:  "google.com",
		}
	}
	return &MemoryGateway{
		opts:        opts,
		logger:      logger.Named("MemoryGateway"),
		hub:         newListenerHub(),
		accounts:    make(map[string]*memoryAccount),
		emailIndex:  make(map[string]string),
		phoneIndex:  make(map[string]string),
		phoneHandle: make(map[string]domain.ChallengeHandle),
		// Entries outlive their challenge so Confirm can tell expired from unknown.
		// No janitor goroutine; abandoned challenges are swept on each RequestCode.
		challenges: cache.New(opts.ChallengeTTL+challengeGrace, 0),
	}
}

// Close drops all pending challenges.
func (g *MemoryGateway) Close() {
	g.challenges.Flush()
}

func (g *MemoryGateway) CreateAccount(ctx context.Context, email, password string) (*domain.ProviderUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if len(password) < minPasswordLength {
		return nil, common.NewProviderError(common.CodeWeakPassword, fmt.Sprintf("Password should be at least %d characters", minPasswordLength))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	g.mu.Lock()
	if _, exists := g.emailIndex[email]; exists {
		g.mu.Unlock()
		return nil, common.NewProviderError(common.CodeEmailExists, "")
	}
	acct := &memoryAccount{
		user:         domain.ProviderUser{UID: uuid.NewString(), Email: email, ProviderID: "password"},
		passwordHash: hash,
	}
	g.accounts[acct.user.UID] = acct
	g.emailIndex[email] = acct.user.UID
	user := acct.user
	g.mu.Unlock()

	g.logger.Info("Account created", zap.String("uid", user.UID))
	g.hub.publish(&user)
	return &user, nil
}

func (g *MemoryGateway) UpdateDisplayName(ctx context.Context, user *domain.ProviderUser, displayName string) (*domain.ProviderUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, common.NewProviderError(common.CodeUserNotFound, "no user to update")
	}

	g.mu.Lock()
	acct, ok := g.accounts[user.UID]
	if !ok {
		g.mu.Unlock()
		return nil, common.NewProviderError(common.CodeUserNotFound, "")
	}
	acct.user.DisplayName = displayName
	updated := acct.user
	g.mu.Unlock()

	if cur := g.hub.currentUser(); cur != nil && cur.UID == updated.UID {
		g.hub.publish(&updated)
	}
	return &updated, nil
}

func (g *MemoryGateway) Authenticate(ctx context.Context, email, password string) (*domain.ProviderUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	g.mu.Lock()
	uid, ok := g.emailIndex[email]
	var acct *memoryAccount
	if ok {
		acct = g.accounts[uid]
	}
	g.mu.Unlock()

	if acct == nil {
		return nil, common.NewProviderError(common.CodeEmailNotFound, "")
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return nil, common.NewProviderError(common.CodeInvalidPassword, "")
	}
	user := acct.user
	g.hub.publish(&user)
	return &user, nil
}

func (g *MemoryGateway) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.hub.publish(nil)
	return nil
}

func (g *MemoryGateway) SendPasswordReset(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.emailIndex[email]; !ok {
		if g.opts.HideAccountExistence {
			return nil
		}
		return common.NewProviderError(common.CodeEmailNotFound, "")
	}
	g.resets = append(g.resets, email)
	return nil
}

// SentResets lists the addresses a reset notification was sent to.
func (g *MemoryGateway) SentResets() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.resets...)
}

func (g *MemoryGateway) ExposesAccountExistence() bool {
	return !g.opts.HideAccountExistence
}

func (g *MemoryGateway) FederatedSignIn(ctx context.Context) (*domain.ProviderUser, error) {
	if g.opts.Consent != nil {
		authURL := func(state string) string {
			return mockConsentURL + "?" + url.Values{"state": {state}, "scope": {"openid profile email"}}.Encode()
		}
		if _, err := runConsent(ctx, g.opts.Consent, nil, authURL, g.logger); err != nil {
			return nil, err
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile := *g.opts.FederatedProfile
	g.mu.Lock()
	if uid, ok := g.emailIndex[strings.ToLower(profile.Email)]; ok {
		profile = g.accounts[uid].user
	} else {
		if profile.UID == "" {
			profile.UID = uuid.NewString()
		}
		g.accounts[profile.UID] = &memoryAccount{user: profile}
		if profile.Email != "" {
			g.emailIndex[strings.ToLower(profile.Email)] = profile.UID
		}
	}
	g.mu.Unlock()

	g.hub.publish(&profile)
	return &profile, nil
}

// MirrorTo makes every push also go to fn, e.g. the mock identity slot read by
// the polling fallback. Pass nil to stop mirroring.
func (g *MemoryGateway) MirrorTo(fn ChangeFunc) {
	g.hub.setMirror(fn)
}

func (g *MemoryGateway) Subscribe(onChange ChangeFunc) func() {
	return g.hub.subscribe(onChange)
}

// ListenerCount reports live push subscriptions.
func (g *MemoryGateway) ListenerCount() int {
	return g.hub.listenerCount()
}

func (g *MemoryGateway) RequestCode(ctx context.Context, phoneNumber string) (domain.ChallengeHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !strings.HasPrefix(phoneNumber, "+") {
		return "", common.NewProviderError("INVALID_PHONE_NUMBER", "phone number must be in E.164 format")
	}
	g.challenges.DeleteExpired()

	handle := domain.ChallengeHandle(uuid.NewString())
	g.mu.Lock()
	if prev, ok := g.phoneHandle[phoneNumber]; ok {
		g.challenges.Delete(string(prev))
	}
	g.phoneHandle[phoneNumber] = handle
	g.challenges.SetDefault(string(handle), &pendingChallenge{
		phoneNumber: phoneNumber,
		expiresAt:   time.Now().Add(g.opts.ChallengeTTL),
	})
	g.mu.Unlock()
	g.logger.Debug("Verification code issued", zap.String("phoneNumber", phoneNumber))
	return handle, nil
}

func (g *MemoryGateway) Confirm(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Lookup, checks and consumption happen under one lock so a handle is
	// confirmed at most once.
	g.mu.Lock()
	v, ok := g.challenges.Get(string(handle))
	if !ok {
		g.mu.Unlock()
		return nil, common.NewProviderError(common.CodeInvalidSessionInfo, "")
	}
	pending := v.(*pendingChallenge)
	if !time.Now().Before(pending.expiresAt) {
		g.forgetLocked(handle, pending.phoneNumber)
		g.mu.Unlock()
		return nil, common.NewProviderError(common.CodeSessionExpired, "")
	}
	if !crypto.EqualCodes(code, g.opts.VerificationCode) {
		g.mu.Unlock()
		return nil, common.NewProviderError(common.CodeInvalidCode, "")
	}
	g.forgetLocked(handle, pending.phoneNumber)

	uid, exists := g.phoneIndex[pending.phoneNumber]
	if !exists {
		uid = uuid.NewString()
		g.accounts[uid] = &memoryAccount{user: domain.ProviderUser{UID: uid, PhoneNumber: pending.phoneNumber, ProviderID: "phone"}}
		g.phoneIndex[pending.phoneNumber] = uid
	}
	user := g.accounts[uid].user
	g.mu.Unlock()

	g.hub.publish(&user)
	return &user, nil
}

// forgetLocked consumes handle so it can never be confirmed again. g.mu must be held.
func (g *MemoryGateway) forgetLocked(handle domain.ChallengeHandle, phoneNumber string) {
	g.challenges.Delete(string(handle))
	if g.phoneHandle[phoneNumber] == handle {
		delete(g.phoneHandle, phoneNumber)
	}
}
