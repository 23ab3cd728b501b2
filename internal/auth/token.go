// Package auth inspects the bearer tokens handed to the Artifactory client.
// Signatures are never checked here; the server remains the authority.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered JWT claims plus the Artifactory scope.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scp,omitempty"`
}

// TokenInfo describes a bearer token. Opaque tokens (reference tokens and
// API keys) carry no readable claims.
type TokenInfo struct {
	Opaque    bool
	Algorithm string
	Subject   string
	Issuer    string
	Audience  []string
	Scope     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken decodes token without verifying its signature.
func InspectToken(token string) (*TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("empty token")
	}
	if strings.Count(token, ".") != 2 {
		return &TokenInfo{Opaque: true}, nil
	}

	claims := &Claims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}

	info := &TokenInfo{
		Algorithm: parsed.Method.Alg(),
		Subject:   claims.Subject,
		Issuer:    claims.Issuer,
		Audience:  claims.Audience,
		Scope:     claims.Scope,
		ID:        claims.ID,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Expired reports whether the token has an expiry at or before now.
func (t *TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}
