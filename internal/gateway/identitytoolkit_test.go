package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"learnapp_auth/internal/common"
	"learnapp_auth/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// MockAdminVerifier is a mock type for AdminVerifier
type MockAdminVerifier struct {
	mock.Mock
}

func (m *MockAdminVerifier) VerifyIDToken(ctx context.Context, idToken string) (*domain.ProviderUser, error) {
	args := m.Called(ctx, idToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderUser), args.Error(1)
}

func (m *MockAdminVerifier) RevokeRefreshTokens(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}

func (m *MockAdminVerifier) UserExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

// fakeToolkit serves the relyingparty endpoints the gateway calls.
type fakeToolkit struct {
	mu       sync.Mutex
	handlers map[string]func(body map[string]interface{}) (int, interface{})
	calls    []string
	keys     []string
}

func (f *fakeToolkit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.URL.Path)
	f.keys = append(f.keys, r.URL.Query().Get("key"))
	handler, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"NOT_FOUND"}}`))
		return
	}
	body := map[string]interface{}{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	status, resp := handler(body)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeToolkit) handle(path string, fn func(body map[string]interface{}) (int, interface{})) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = fn
}

func (f *fakeToolkit) apiKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func (f *fakeToolkit) called(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == path {
			return true
		}
	}
	return false
}

func apiError(message string) (int, interface{}) {
	return http.StatusBadRequest, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    400,
			"message": message,
			"errors":  []map[string]interface{}{{"message": message, "domain": "global", "reason": "invalid"}},
		},
	}
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func newToolkit(t *testing.T, opts IdentityToolkitOptions) (*IdentityToolkitGateway, *fakeToolkit, *httptest.Server) {
	t.Helper()
	fake := &fakeToolkit{handlers: map[string]func(map[string]interface{}) (int, interface{}){}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	opts.APIKey = "test-api-key"
	opts.ClientOptions = append(opts.ClientOptions, option.WithEndpoint(srv.URL+"/"))
	gw, err := NewIdentityToolkitGateway(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	return gw, fake, srv
}

func TestIdentityToolkit_CreateAccount(t *testing.T) {
	gw, fake, _ := newToolkit(t, IdentityToolkitOptions{})
	idToken := signedToken(t, jwt.MapClaims{"user_id": "uid-1", "name": "Ada", "email": "ada@example.com"})
	fake.handle("/signupNewUser", func(body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, "secret1", body["password"])
		return http.StatusOK, map[string]interface{}{"localId": "uid-1", "email": "ada@example.com", "idToken": idToken}
	})

	var pushed []*domain.ProviderUser
	gw.Subscribe(func(u *domain.ProviderUser) { pushed = append(pushed, u) })

	user, err := gw.CreateAccount(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", user.UID)
	assert.Equal(t, "Ada", user.DisplayName, "filled from the ID token claims")
	assert.Equal(t, idToken, user.IDToken)
	require.Len(t, pushed, 2)
	assert.Equal(t, "uid-1", pushed[1].UID)
	assert.Equal(t, []string{"test-api-key"}, fake.apiKeys())
}

func TestIdentityToolkit_ErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantCode string
		wantKind common.ErrorKind
	}{
		{name: "email exists", message: "EMAIL_EXISTS", wantCode: common.CodeEmailExists, wantKind: common.KindEmailInUse},
		{name: "weak password with detail", message: "WEAK_PASSWORD : Password should be at least 6 characters", wantCode: common.CodeWeakPassword, wantKind: common.KindWeakPassword},
		{name: "unknown code", message: "QUOTA_EXCEEDED", wantCode: "QUOTA_EXCEEDED", wantKind: common.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, fake, _ := newToolkit(t, IdentityToolkitOptions{})
			fake.handle("/signupNewUser", func(map[string]interface{}) (int, interface{}) {
				return apiError(tt.message)
			})

			_, err := gw.CreateAccount(context.Background(), "ada@example.com", "secret1")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, providerCode(t, err))
			assert.Equal(t, tt.wantKind, common.MapError(err).Kind)
		})
	}
}

func TestIdentityToolkit_Authenticate(t *testing.T) {
	gw, fake, _ := newToolkit(t, IdentityToolkitOptions{})
	fake.handle("/verifyPassword", func(body map[string]interface{}) (int, interface{}) {
		if body["password"] != "secret1" {
			return apiError("INVALID_LOGIN_CREDENTIALS")
		}
		return http.StatusOK, map[string]interface{}{"localId": "uid-1", "email": "ada@example.com", "displayName": "Ada"}
	})

	_, err := gw.Authenticate(context.Background(), "ada@example.com", "nope")
	assert.Equal(t, common.KindInvalidCredentials, common.MapError(err).Kind)

	user, err := gw.Authenticate(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.DisplayName)
}

func TestIdentityToolkit_UpdateDisplayName(t *testing.T) {
	gw, fake, _ := newToolkit(t, IdentityToolkitOptions{})
	fake.handle("/setAccountInfo", func(body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "tok", body["idToken"])
		return http.StatusOK, map[string]interface{}{"localId": "uid-1", "displayName": body["displayName"], "idToken": "tok2"}
	})

	_, err := gw.UpdateDisplayName(context.Background(), &domain.ProviderUser{UID: "uid-1"}, "Ada")
	assert.Equal(t, common.KindUserNotFound, common.MapError(err).Kind, "an update needs the user's ID token")

	updated, err := gw.UpdateDisplayName(context.Background(), &domain.ProviderUser{UID: "uid-1", IDToken: "tok"}, "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.DisplayName)
	assert.Equal(t, "tok2", updated.IDToken)
}

func TestIdentityToolkit_SendPasswordReset(t *testing.T) {
	t.Run("without admin", func(t *testing.T) {
		gw, fake, _ := newToolkit(t, IdentityToolkitOptions{})
		fake.handle("/getOobConfirmationCode", func(body map[string]interface{}) (int, interface{}) {
			assert.Equal(t, "PASSWORD_RESET", body["requestType"])
			return http.StatusOK, map[string]interface{}{"email": body["email"]}
		})
		assert.NoError(t, gw.SendPasswordReset(context.Background(), "ada@example.com"))
		assert.False(t, gw.ExposesAccountExistence())
	})

	t.Run("admin reports unknown address", func(t *testing.T) {
		admin := new(MockAdminVerifier)
		admin.On("UserExists", mock.Anything, "nobody@example.com").Return(false, nil)
		gw, fake, _ := newToolkit(t, IdentityToolkitOptions{Admin: admin})

		err := gw.SendPasswordReset(context.Background(), "nobody@example.com")
		assert.Equal(t, common.KindUserNotFound, common.MapError(err).Kind)
		assert.False(t, fake.called("/getOobConfirmationCode"))
		assert.True(t, gw.ExposesAccountExistence())
		admin.AssertExpectations(t)
	})
}

func TestIdentityToolkit_SignOutRevokesWithAdmin(t *testing.T) {
	admin := new(MockAdminVerifier)
	admin.On("VerifyIDToken", mock.Anything, "tok").Return(&domain.ProviderUser{UID: "uid-1", Email: "ada@example.com"}, nil)
	admin.On("RevokeRefreshTokens", mock.Anything, "uid-1").Return(nil)
	gw, fake, _ := newToolkit(t, IdentityToolkitOptions{Admin: admin})
	fake.handle("/verifyPassword", func(map[string]interface{}) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"localId": "uid-1", "idToken": "tok"}
	})

	user, err := gw.Authenticate(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email, "the verified admin view wins")
	assert.Equal(t, "password", user.ProviderID)

	var last *domain.ProviderUser
	gw.Subscribe(func(u *domain.ProviderUser) { last = u })
	require.NotNil(t, last)

	require.NoError(t, gw.SignOut(context.Background()))
	assert.Nil(t, last)
	admin.AssertExpectations(t)
}

func TestIdentityToolkit_PhoneChallenge(t *testing.T) {
	gw, fake, _ := newToolkit(t, IdentityToolkitOptions{RecaptchaToken: "captcha"})
	fake.handle("/sendVerificationCode", func(body map[string]interface{}) (int, interface{}) {
		assert.Equal(t, "+12025550123", body["phoneNumber"])
		assert.Equal(t, "captcha", body["recaptchaToken"])
		return http.StatusOK, map[string]interface{}{"sessionInfo": "session-1"}
	})
	fake.handle("/verifyPhoneNumber", func(body map[string]interface{}) (int, interface{}) {
		if body["sessionInfo"] != "session-1" {
			return apiError("INVALID_SESSION_INFO")
		}
		if body["code"] != "123456" {
			return apiError("INVALID_CODE")
		}
		return http.StatusOK, map[string]interface{}{"localId": "uid-p", "phoneNumber": "+12025550123"}
	})

	handle, err := gw.RequestCode(context.Background(), "+12025550123")
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeHandle("session-1"), handle)

	_, err = gw.Confirm(context.Background(), handle, "000000")
	assert.Equal(t, common.KindChallengeMismatch, common.MapError(err).Kind)

	_, err = gw.Confirm(context.Background(), "stale", "123456")
	assert.Equal(t, common.KindNoActiveChallenge, common.MapError(err).Kind)

	user, err := gw.Confirm(context.Background(), handle, "123456")
	require.NoError(t, err)
	assert.Equal(t, "+12025550123", user.PhoneNumber)
}

func TestIdentityToolkit_FederatedSignIn(t *testing.T) {
	idToken := signedToken(t, jwt.MapClaims{"sub": "google-sub", "email": "ada@gmail.example", "name": "Ada"})
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "approved", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	defer tokenSrv.Close()

	oauthCfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8085/oauth/callback",
		Scopes:       []string{"openid", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example/auth",
			TokenURL:  tokenSrv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	gw, fake, _ := newToolkit(t, IdentityToolkitOptions{OAuth: oauthCfg, Consent: ConsentFunc(approve)})
	fake.handle("/verifyAssertion", func(body map[string]interface{}) (int, interface{}) {
		raw, _ := body["postBody"].(string)
		postBody, err := url.ParseQuery(raw)
		assert.NoError(t, err)
		assert.Equal(t, "google.com", postBody.Get("providerId"))
		assert.Equal(t, idToken, postBody.Get("id_token"))
		return http.StatusOK, map[string]interface{}{"localId": "uid-g", "email": "ada@gmail.example", "idToken": idToken}
	})

	user, err := gw.FederatedSignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "uid-g", user.UID)
	assert.Equal(t, "Ada", user.DisplayName)
	assert.Equal(t, "google.com", user.ProviderID)
}

func TestIdentityToolkit_NetworkFailure(t *testing.T) {
	gw, _, srv := newToolkit(t, IdentityToolkitOptions{})
	srv.Close()

	_, err := gw.Authenticate(context.Background(), "ada@example.com", "secret1")
	require.Error(t, err)
	assert.Equal(t, common.KindNetworkError, common.MapError(err).Kind)
}
