// File: internal/common/errors.go
package common

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorKind classifies auth failures for display and branching.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "INVALID_CREDENTIALS"
	KindUserNotFound       ErrorKind = "USER_NOT_FOUND"
	KindEmailInUse         ErrorKind = "EMAIL_IN_USE"
	KindWeakPassword       ErrorKind = "WEAK_PASSWORD"
	KindUserCancelled      ErrorKind = "USER_CANCELLED"
	KindNetworkError       ErrorKind = "NETWORK_ERROR"
	KindNoActiveChallenge  ErrorKind = "NO_ACTIVE_CHALLENGE"
	KindChallengeMismatch  ErrorKind = "CHALLENGE_MISMATCH"
	KindChallengeExpired   ErrorKind = "CHALLENGE_EXPIRED"
	KindUnknown            ErrorKind = "UNKNOWN"
)

var defaultMessages = map[ErrorKind]string{
	KindInvalidCredentials: "The email or password is incorrect.",
	KindUserNotFound:       "No account exists for this address.",
	KindEmailInUse:         "An account already exists for this email.",
	KindWeakPassword:       "The password is too weak.",
	KindUserCancelled:      "Sign-in was cancelled.",
	KindNetworkError:       "The network is unavailable. Please try again.",
	KindNoActiveChallenge:  "Request a verification code first.",
	KindChallengeMismatch:  "The verification code is incorrect.",
	KindChallengeExpired:   "The verification code has expired. Request a new one.",
	KindUnknown:            "Something went wrong. Please try again.",
}

// AuthError is the transient error recorded in the session store and returned to callers.
// Err holds the original cause so callers can still inspect provider details.
type AuthError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("AuthError: Kind=%s, Message=%s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("AuthError: Kind=%s, Message=%s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind, so errors.Is(err, ErrChallengeMismatch) works.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewAuthError builds an AuthError with the default message for kind.
func NewAuthError(kind ErrorKind, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: DefaultMessage(kind), Err: cause}
}

// DefaultMessage returns the generic user-facing message for kind.
func DefaultMessage(kind ErrorKind) string {
	if msg, ok := defaultMessages[kind]; ok {
		return msg
	}
	return defaultMessages[KindUnknown]
}

var (
	ErrInvalidCredentials = NewAuthError(KindInvalidCredentials, nil)
	ErrUserNotFound       = NewAuthError(KindUserNotFound, nil)
	ErrEmailInUse         = NewAuthError(KindEmailInUse, nil)
	ErrWeakPassword       = NewAuthError(KindWeakPassword, nil)
	ErrUserCancelled      = NewAuthError(KindUserCancelled, nil)
	ErrNetwork            = NewAuthError(KindNetworkError, nil)
	ErrNoActiveChallenge  = NewAuthError(KindNoActiveChallenge, nil)
	ErrChallengeMismatch  = NewAuthError(KindChallengeMismatch, nil)
	ErrChallengeExpired   = NewAuthError(KindChallengeExpired, nil)
	ErrUnknown            = NewAuthError(KindUnknown, nil)
)

func IsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown when err is not an AuthError.
func KindOf(err error) ErrorKind {
	if authErr, ok := IsAuthError(err); ok {
		return authErr.Kind
	}
	return KindUnknown
}

// Provider error codes, in the vocabulary of the Identity Toolkit REST API.
const (
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeInvalidPassword    = "INVALID_PASSWORD"
	CodeInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeEmailNotFound      = "EMAIL_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidCode        = "INVALID_CODE"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeInvalidSessionInfo = "INVALID_SESSION_INFO"
	CodeMissingSessionInfo = "MISSING_SESSION_INFO"
	CodeConsentCancelled   = "CONSENT_CANCELLED"
	CodeNetworkFailed      = "NETWORK_REQUEST_FAILED"
)

var providerKinds = map[string]ErrorKind{
	CodeEmailExists:        KindEmailInUse,
	CodeWeakPassword:       KindWeakPassword,
	CodeInvalidPassword:    KindInvalidCredentials,
	CodeInvalidCredentials: KindInvalidCredentials,
	CodeInvalidEmail:       KindInvalidCredentials,
	CodeEmailNotFound:      KindUserNotFound,
	CodeUserNotFound:       KindUserNotFound,
	CodeInvalidCode:        KindChallengeMismatch,
	CodeSessionExpired:     KindChallengeExpired,
	CodeInvalidSessionInfo: KindNoActiveChallenge,
	CodeMissingSessionInfo: KindNoActiveChallenge,
	CodeConsentCancelled:   KindUserCancelled,
	CodeNetworkFailed:      KindNetworkError,
}

// ProviderError is a failure reported by the identity provider gateway.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return "provider error " + e.Code
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError for code.
func NewProviderError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

// ParseProviderCode extracts the leading code from messages such as
// "WEAK_PASSWORD : Password should be at least 6 characters".
func ParseProviderCode(message string) string {
	code := strings.TrimSpace(message)
	if i := strings.IndexAny(code, " :"); i >= 0 {
		code = code[:i]
	}
	return code
}

// MapError converts any gateway failure into an AuthError wrapping it.
// An existing AuthError is returned unchanged; nil maps to nil.
func MapError(err error) *AuthError {
	if err == nil {
		return nil
	}
	if authErr, ok := IsAuthError(err); ok {
		return authErr
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if kind, ok := providerKinds[provErr.Code]; ok {
			return NewAuthError(kind, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return NewAuthError(KindUserCancelled, err)
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return NewAuthError(KindNetworkError, err)
	}
	return NewAuthError(KindUnknown, err)
}

// FormatValidationErrors converts validator.ValidationErrors into a map.
func FormatValidationErrors(errs validator.ValidationErrors) map[string]string {
	errorMap := make(map[string]string)
	for _, e := range errs {
		field := e.Field()
		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("The %s field is required.", strings.ToLower(field))
		case "email":
			message = fmt.Sprintf("The %s field must be a valid email address.", strings.ToLower(field))
		case "phone_e164":
			message = fmt.Sprintf("The %s field must be an E.164 phone number such as +12025550123.", strings.ToLower(field))
		case "min":
			message = fmt.Sprintf("The %s field must be at least %s characters long.", strings.ToLower(field), e.Param())
		case "max":
			message = fmt.Sprintf("The %s field may not be greater than %s characters.", strings.ToLower(field), e.Param())
		case "numeric":
			message = fmt.Sprintf("The %s field must contain only digits.", strings.ToLower(field))
		case "len":
			message = fmt.Sprintf("The %s field must be exactly %s characters long.", strings.ToLower(field), e.Param())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag.", field, e.Tag())
		}
		errorMap[field] = message
	}
	return errorMap
}
