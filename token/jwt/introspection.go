package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TokenIntrospection is what a client can learn from an access token without
// the signing key. None of it is trusted; it only informs scheduling.
type TokenIntrospection struct {
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Introspect parses rawToken without verifying its signature. Opaque
// (non-JWT) tokens return an error.
func Introspect(rawToken string) (*TokenIntrospection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("empty token")
	}

	claims := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return nil, err
	}

	ti := &TokenIntrospection{
		Subject: claims.Subject,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		ti.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		ti.ExpiresAt = claims.ExpiresAt.Time
	}
	return ti, nil
}

// ExpiresAt returns the exp claim of rawToken, if it is a JWT that has one
func ExpiresAt(rawToken string) (time.Time, bool) {
	ti, err := Introspect(rawToken)
	if err != nil || ti.ExpiresAt.IsZero() {
		return time.Time{}, false
	}
	return ti.ExpiresAt, true
}
