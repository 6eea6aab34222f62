package token

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const bearerType = "Bearer"

// Credentials is the access/refresh token pair plus the expiry metadata the
// backend returned with it. A pair is always replaced as a whole.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"` // seconds, as issued
	IssuedAt     time.Time `json:"issued_at,omitempty"`
}

// Valid reports whether both halves of the pair are present
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// Lifetime is the issued lifetime of the access token, zero when unknown
func (c Credentials) Lifetime() time.Duration {
	if c.ExpiresIn <= 0 {
		return 0
	}
	return time.Duration(c.ExpiresIn) * time.Second
}

// ExpiresAt returns the access token expiry, or the zero time when the
// issue time or lifetime is unknown.
func (c Credentials) ExpiresAt() time.Time {
	if c.IssuedAt.IsZero() || c.ExpiresIn <= 0 {
		return time.Time{}
	}
	return c.IssuedAt.Add(c.Lifetime())
}

// Remaining returns the access token lifetime left at now and whether it is
// known at all.
func (c Credentials) Remaining(now time.Time) (time.Duration, bool) {
	exp := c.ExpiresAt()
	if exp.IsZero() {
		return 0, false
	}
	return exp.Sub(now), true
}

// OAuth2 converts the pair into an oauth2.Token. The backend always issues
// bearer tokens regardless of the case of token_type.
func (c Credentials) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    bearerType,
		Expiry:       c.ExpiresAt(),
	}
}

// SetAuthHeader sets "Authorization: Bearer <access_token>" on r
func (c Credentials) SetAuthHeader(r *http.Request) {
	c.OAuth2().SetAuthHeader(r)
}

// Response is the body of POST /api/auth/login and POST /api/auth/refresh
type Response struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Credentials converts a token response received at issuedAt
func (r Response) Credentials(issuedAt time.Time) Credentials {
	tokenType := r.TokenType
	if strings.EqualFold(tokenType, bearerType) || tokenType == "" {
		tokenType = strings.ToLower(bearerType)
	}
	return Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    r.ExpiresIn,
		IssuedAt:     issuedAt,
	}
}
