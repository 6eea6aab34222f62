package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Creator signs HS256 access tokens in the backend's format: sub is the
// numeric user ID, plus exp, iat and a random jti so every rotation yields a
// distinct token.
type Creator struct {
	secret []byte
	ttl    time.Duration
}

// NewCreator creates a new JWT creator
func NewCreator(secret string, ttl time.Duration) (*Creator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid access token ttl %s", ttl)
	}
	return &Creator{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime given to every access token
func (c *Creator) TTL() time.Duration {
	return c.ttl
}

// CreateAccessToken creates an access token for the user
func (c *Creator) CreateAccessToken(userID int64) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(c.ttl)),
		ID:        uuid.New().String(),
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of an access token issued by this
// creator and returns the user ID it was issued to.
func (c *Creator) Verify(rawToken string) (int64, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(rawToken, claims, func(t *jwtlib.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(NowTimeFunc),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject %q: %w", claims.Subject, err)
	}
	return userID, nil
}
