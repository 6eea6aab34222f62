package client_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-school-session/client"
	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/users"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	client.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { client.NowTimeFunc = time.Now })

	b := newBackend(t, "T1")
	b.login = token.Response{AccessToken: "T1", RefreshToken: "R1", TokenType: "bearer", ExpiresIn: 3600}
	c, _, _ := newClient(t, b, nil)

	creds, err := c.Auth().Login(context.Background(), "  Teacher@School.TEST ", "Password1")
	require.NoError(t, err)
	require.Equal(t, "T1", creds.AccessToken)
	require.Equal(t, "R1", creds.RefreshToken)
	require.True(t, creds.IssuedAt.Equal(now))
	require.Equal(t, time.Hour, creds.Lifetime())

	reqs := b.recorded()
	require.Len(t, reqs, 1)
	require.JSONEq(t, `{"email":"teacher@school.test","password":"Password1"}`, reqs[0].Body)
	require.Empty(t, reqs[0].Authorization)
}

func TestLoginRejected(t *testing.T) {
	b := newBackend(t, "T1")
	stale := pair("T0", "R0")
	c, _, _ := newClient(t, b, &stale)

	_, err := c.Auth().Login(context.Background(), "teacher@school.test", "wrong")
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	require.NotErrorIs(t, err, client.ErrSessionExpired)
	require.Zero(t, b.refreshCalls.Load())
	require.Empty(t, b.recorded()[0].Authorization)
}

func TestLoginIncompleteResponse(t *testing.T) {
	b := newBackend(t, "T1")
	b.login = token.Response{AccessToken: "T1"}
	c, _, _ := newClient(t, b, nil)

	_, err := c.Auth().Login(context.Background(), "teacher@school.test", "Password1")
	require.ErrorIs(t, err, token.ErrIncompleteCredentials)
}

func TestMe(t *testing.T) {
	b := newBackend(t, "T1")
	creds := pair("T1", "R1")
	c, _, _ := newClient(t, b, &creds)

	profile, err := c.Auth().Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), profile.ID)
	require.Equal(t, users.RoleTeacher, profile.Role)
	require.True(t, profile.IsActive())
}

func TestAccountEndpoints(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "T1")
	c, _, _ := newClient(t, b, nil)
	auth := c.Auth()

	require.NoError(t, auth.RequestEmailVerification(ctx, " Parent@School.test"))
	require.NoError(t, auth.VerifyEmail(ctx, "verify-token"))
	require.NoError(t, auth.RequestPasswordReset(ctx, "PARENT@school.test"))
	require.NoError(t, auth.ResetPassword(ctx, "reset-token", "NewPassw0rd"))

	reqs := b.recorded()
	require.Len(t, reqs, 4)
	require.Equal(t, client.RequestEmailVerificationPath, reqs[0].Path)
	require.JSONEq(t, `{"email":"parent@school.test"}`, reqs[0].Body)
	require.Equal(t, client.VerifyEmailPath, reqs[1].Path)
	require.JSONEq(t, `{"token":"verify-token"}`, reqs[1].Body)
	require.Equal(t, client.ForgotPasswordPath, reqs[2].Path)
	require.JSONEq(t, `{"email":"parent@school.test"}`, reqs[2].Body)
	require.Equal(t, client.ResetPasswordPath, reqs[3].Path)
	require.JSONEq(t, `{"token":"reset-token","new_password":"NewPassw0rd"}`, reqs[3].Body)
}

func TestResetPasswordRejectsWeakPassword(t *testing.T) {
	b := newBackend(t, "T1")
	c, _, _ := newClient(t, b, nil)

	err := c.Auth().ResetPassword(context.Background(), "reset-token", "weak")
	require.Error(t, err)
	require.Empty(t, b.recorded())
}
