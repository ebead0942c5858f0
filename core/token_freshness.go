package core

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenState captures access/refresh lifecycle flags derived from a token set.
type TokenState struct {
	ExpiresAt       time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
}

// ResolveTokenState evaluates expiry with leeway; tokens inside the leeway
// window count as expired.
func ResolveTokenState(now time.Time, token TokenSet, leeway time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	state := TokenState{
		ExpiresAt:       token.ExpiresAt,
		HasAccessToken:  strings.TrimSpace(token.AccessToken) != "",
		HasRefreshToken: strings.TrimSpace(token.RefreshToken) != "",
	}
	if token.ExpiresAt.IsZero() {
		return state
	}
	state.IsExpired = !token.ExpiresAt.After(now.Add(leeway))
	return state
}

// ShouldRefreshToken reports whether a refresh must precede the next request.
func ShouldRefreshToken(state TokenState) bool {
	return state.HasAccessToken && state.IsExpired
}

// TokenExpiryFromJWT reads the exp claim without verifying the signature. The
// server remains the authority on validity; this only schedules refreshes.
func TokenExpiryFromJWT(accessToken string) (time.Time, bool) {
	accessToken = strings.TrimSpace(accessToken)
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time.UTC(), true
}

// resolveTokenExpiry fills a missing expiry from the JWT exp claim, then from
// the default lifetime.
func resolveTokenExpiry(token TokenSet, now time.Time, defaultTTL time.Duration) TokenSet {
	if !token.ExpiresAt.IsZero() {
		return token
	}
	if expiresAt, ok := TokenExpiryFromJWT(token.AccessToken); ok {
		token.ExpiresAt = expiresAt
		return token
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}
	token.ExpiresAt = now.Add(defaultTTL)
	return token
}
