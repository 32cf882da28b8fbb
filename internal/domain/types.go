package domain

import (
	"time"
)

// Identity is an immutable snapshot of the signed-in user. It is replaced
// wholesale on every change and never patched in place.
type Identity struct {
	ID          string
	DisplayName *string
	Email       *string
	PhoneNumber *string
}

// Equal reports value equality, treating two nil identities as equal.
func (i *Identity) Equal(o *Identity) bool {
	if i == nil || o == nil {
		return i == o
	}
	return i.ID == o.ID &&
		equalPtr(i.DisplayName, o.DisplayName) &&
		equalPtr(i.Email, o.Email) &&
		equalPtr(i.PhoneNumber, o.PhoneNumber)
}

// Clone returns a deep copy so callers can never mutate a stored snapshot.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	return &Identity{
		ID:          i.ID,
		DisplayName: clonePtr(i.DisplayName),
		Email:       clonePtr(i.Email),
		PhoneNumber: clonePtr(i.PhoneNumber),
	}
}

// ProviderUser is the gateway-side user record.
type ProviderUser struct {
	UID         string
	DisplayName string
	Email       string
	PhoneNumber string
	ProviderID  string // "password", "phone", "google.com"
	IDToken     string
}

// IdentityFromProvider maps a provider record to an Identity. Empty provider
// fields become nil. A nil record maps to nil (signed out).
func IdentityFromProvider(u *ProviderUser) *Identity {
	if u == nil {
		return nil
	}
	return &Identity{
		ID:          u.UID,
		DisplayName: optional(u.DisplayName),
		Email:       optional(u.Email),
		PhoneNumber: optional(u.PhoneNumber),
	}
}

// ChallengeHandle is the opaque token for one in-flight phone verification.
type ChallengeHandle string

// PhoneChallenge is created when a code is sent and consumed on verification.
type PhoneChallenge struct {
	PhoneNumber string
	Handle      ChallengeHandle
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the challenge is past its expiry at now.
func (c *PhoneChallenge) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
