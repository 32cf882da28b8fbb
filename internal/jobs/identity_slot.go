package jobs

import (
	"sync/atomic"

	"learnapp_auth/internal/domain"
)

// IdentitySlot is a place the polling fallback can read the current identity from.
type IdentitySlot interface {
	Load() *domain.Identity
}

// SlotFunc adapts a function to IdentitySlot.
type SlotFunc func() *domain.Identity

func (f SlotFunc) Load() *domain.Identity { return f() }

var mockIdentity atomic.Pointer[domain.Identity]

// SetMockIdentity publishes identity in the process-wide mock slot. The mock
// backend (or a test) writes here when push delivery cannot be trusted.
func SetMockIdentity(identity *domain.Identity) {
	mockIdentity.Store(identity.Clone())
}

// ClearMockIdentity empties the process-wide mock slot.
func ClearMockIdentity() {
	mockIdentity.Store(nil)
}

// MockIdentitySlot reads the process-wide mock slot. Only used in mock mode.
type MockIdentitySlot struct{}

func (MockIdentitySlot) Load() *domain.Identity {
	return mockIdentity.Load().Clone()
}
