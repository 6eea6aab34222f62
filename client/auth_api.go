package client

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-school-session/internal/errors"
	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/token/refresh"
	"github.com/jrsteele09/go-school-session/users"
)

// NowTimeFunc stamps received credentials. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	RequestEmailVerificationPath = "/api/auth/request-email-verification"
	VerifyEmailPath              = "/api/auth/verify-email"
	ForgotPasswordPath           = "/api/auth/forgot-password"
	ResetPasswordPath            = "/api/auth/reset-password"
)

// AuthAPI is the backend's authentication surface. None of its calls carry
// the stored access token or trigger a refresh, except Me.
type AuthAPI struct {
	client *Client
}

var (
	_ refresh.Exchanger = (*AuthAPI)(nil)
	_ Refresher         = (*refresh.Coordinator)(nil)
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Login exchanges email and password for a credential pair. The pair is not
// stored; that is up to the caller.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (token.Credentials, error) {
	req := loginRequest{Email: users.NormalizeEmail(email), Password: password}
	return a.tokenRequest(ctx, LoginPath, req)
}

// Exchange spends refreshToken for a new pair at the rotating refresh endpoint
func (a *AuthAPI) Exchange(ctx context.Context, refreshToken string) (token.Credentials, error) {
	return a.tokenRequest(ctx, RefreshPath, refreshRequest{RefreshToken: refreshToken})
}

func (a *AuthAPI) tokenRequest(ctx context.Context, path string, body any) (token.Credentials, error) {
	var resp token.Response
	err := a.client.Post(ctx, path, body, &resp, WithoutCredentials(), WithoutRefresh())
	if err != nil {
		return token.Credentials{}, err
	}

	creds := resp.Credentials(NowTimeFunc())
	if !creds.Valid() {
		return token.Credentials{}, apperrors.Wrapf(token.ErrIncompleteCredentials, "[AuthAPI %s]", path)
	}
	return creds, nil
}

// Me fetches the profile of the stored session's user. It goes through the
// normal request path, so an expired access token is refreshed first.
func (a *AuthAPI) Me(ctx context.Context) (users.Profile, error) {
	var profile users.Profile
	if err := a.client.Get(ctx, MePath, &profile); err != nil {
		return users.Profile{}, err
	}
	return profile, nil
}

func (a *AuthAPI) RequestEmailVerification(ctx context.Context, email string) error {
	body := emailRequest{Email: users.NormalizeEmail(email)}
	return a.client.Post(ctx, RequestEmailVerificationPath, body, nil, WithoutCredentials(), WithoutRefresh())
}

func (a *AuthAPI) VerifyEmail(ctx context.Context, verificationToken string) error {
	body := verifyEmailRequest{Token: verificationToken}
	return a.client.Post(ctx, VerifyEmailPath, body, nil, WithoutCredentials(), WithoutRefresh())
}

// RequestPasswordReset asks the backend to mail a reset link. The backend
// answers the same way whether or not the address exists.
func (a *AuthAPI) RequestPasswordReset(ctx context.Context, email string) error {
	body := emailRequest{Email: users.NormalizeEmail(email)}
	return a.client.Post(ctx, ForgotPasswordPath, body, nil, WithoutCredentials(), WithoutRefresh())
}

// ResetPassword sets a new password with a token from the reset mail. Weak
// passwords are rejected before any request is sent.
func (a *AuthAPI) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return apperrors.Wrapf(err, "[AuthAPI ResetPassword]")
	}
	body := resetPasswordRequest{Token: resetToken, NewPassword: newPassword}
	return a.client.Post(ctx, ResetPasswordPath, body, nil, WithoutCredentials(), WithoutRefresh())
}
