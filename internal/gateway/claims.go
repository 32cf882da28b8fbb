package gateway

import (
	"fmt"

	"learnapp_auth/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// claimsFromIDToken decodes the payload of a provider ID token without checking
// its signature. Only use the result to fill display fields; verification is
// the admin verifier's job.
func claimsFromIDToken(idToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}
	return claims, nil
}

// mergeClaims copies name, email and phone_number claims into empty user fields.
func mergeClaims(user *domain.ProviderUser, claims jwt.MapClaims) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := claims[key].(string); ok {
			*dst = v
		}
	}
	fill(&user.UID, "user_id")
	fill(&user.UID, "sub")
	fill(&user.DisplayName, "name")
	fill(&user.Email, "email")
	fill(&user.PhoneNumber, "phone_number")
}
