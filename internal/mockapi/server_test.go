package mockapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-school-session/client"
	"github.com/jrsteele09/go-school-session/internal/mockapi"
	"github.com/jrsteele09/go-school-session/token/memstore"
	"github.com/jrsteele09/go-school-session/users"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, opts ...mockapi.Option) (*mockapi.Server, *httptest.Server) {
	t.Helper()
	srv, err := mockapi.New(opts...)
	require.NoError(t, err)
	_, err = srv.AddAccount("Ada Teacher", "ada@school.test", "Password1", users.RoleTeacher)
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLoginAndMe(t *testing.T) {
	ctx := context.Background()
	srv, ts := newServer(t, mockapi.WithAccessTokenTTL(15*time.Minute))
	c := client.New(ts.URL, memstore.New())

	creds, err := c.Auth().Login(ctx, " ADA@school.test", "Password1")
	require.NoError(t, err)
	require.Equal(t, int64(900), creds.ExpiresIn)
	require.Equal(t, int64(1), srv.LoginCalls())
	require.NoError(t, c.Store().Set(ctx, creds))

	profile, err := c.Auth().Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "ada@school.test", profile.Email)
	require.Equal(t, users.RoleTeacher, profile.Role)
	require.Equal(t, users.StatusActive, profile.Status)
}

func TestLoginRejections(t *testing.T) {
	srv, ts := newServer(t)

	resp := postJSON(t, ts.URL+mockapi.RouteLogin, map[string]string{"email": "ada@school.test", "password": "nope"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, ts.URL+mockapi.RouteLogin, map[string]string{"email": "nobody@school.test", "password": "Password1"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, srv.DisableAccount("ada@school.test"))
	resp = postJSON(t, ts.URL+mockapi.RouteLogin, map[string]string{"email": "ada@school.test", "password": "Password1"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRefreshRotates(t *testing.T) {
	ctx := context.Background()
	srv, ts := newServer(t)
	c := client.New(ts.URL, memstore.New())

	first, err := c.Auth().Login(ctx, "ada@school.test", "Password1")
	require.NoError(t, err)

	second, err := c.Auth().Exchange(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, int64(1), srv.RefreshCalls())
	require.Equal(t, 1, srv.OutstandingRefreshTokens())

	// A spent refresh token cannot be replayed
	_, err = c.Auth().Exchange(ctx, first.RefreshToken)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))

	require.NoError(t, srv.DisableAccount("ada@school.test"))
	_, err = c.Auth().Exchange(ctx, second.RefreshToken)
	require.True(t, client.IsStatus(err, http.StatusForbidden))
}

func TestRevokeAccessTokens(t *testing.T) {
	ctx := context.Background()
	srv, ts := newServer(t)
	c := client.New(ts.URL, memstore.New())

	creds, err := c.Auth().Login(ctx, "ada@school.test", "Password1")
	require.NoError(t, err)
	require.NoError(t, c.Store().Set(ctx, creds))

	var out map[string]any
	require.NoError(t, c.Get(ctx, "/api/students", &out))
	require.Equal(t, "students", out["resource"])

	srv.RevokeAccessTokens()
	require.Equal(t, 1, srv.RevokedAccessTokens())
	err = c.Get(ctx, "/api/students", nil)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	require.Equal(t, int64(1), srv.RejectedCalls())

	fresh, err := c.Auth().Exchange(ctx, creds.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, c.Store().Set(ctx, fresh))
	require.NoError(t, c.Get(ctx, "/api/students/12", &out))
	require.Equal(t, "12", out["id"])
}

func TestResourceRequiresBearer(t *testing.T) {
	_, ts := newServer(t)

	resp, err := http.Get(ts.URL + "/api/classes")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "Not authenticated", body["detail"])
}

func TestEmailVerification(t *testing.T) {
	ctx := context.Background()
	srv, ts := newServer(t)
	auth := client.New(ts.URL, memstore.New()).Auth()

	require.NoError(t, auth.RequestEmailVerification(ctx, "ada@school.test"))
	mail, ok := srv.LastMail("ada@school.test")
	require.True(t, ok)
	require.Equal(t, "verify-email", mail.Kind)

	require.NoError(t, auth.VerifyEmail(ctx, mail.Token))
	err := auth.VerifyEmail(ctx, mail.Token)
	require.True(t, client.IsStatus(err, http.StatusBadRequest))
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	srv, ts := newServer(t)
	auth := client.New(ts.URL, memstore.New()).Auth()

	before, err := auth.Login(ctx, "ada@school.test", "Password1")
	require.NoError(t, err)

	require.NoError(t, auth.RequestPasswordReset(ctx, "ada@school.test"))
	mail, ok := srv.LastMail("ada@school.test")
	require.True(t, ok)
	require.Equal(t, "reset-password", mail.Kind)

	require.NoError(t, auth.ResetPassword(ctx, mail.Token, "Better123"))

	_, err = auth.Login(ctx, "ada@school.test", "Password1")
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	_, err = auth.Login(ctx, "ada@school.test", "Better123")
	require.NoError(t, err)

	// Existing refresh tokens died with the old password
	_, err = auth.Exchange(ctx, before.RefreshToken)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))

	// Unknown addresses get the same answer and no mail
	require.NoError(t, auth.RequestPasswordReset(ctx, "ghost@school.test"))
	_, ok = srv.LastMail("ghost@school.test")
	require.False(t, ok)
}

func TestCorsPreflight(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "http://localhost:5173")
	_, ts := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+mockapi.RouteLogin, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestAddAccountRejectsUnknownRole(t *testing.T) {
	srv, err := mockapi.New()
	require.NoError(t, err)
	_, err = srv.AddAccount("Eve", "eve@school.test", "Password1", users.Role("janitor"))
	require.Error(t, err)
}

func TestSeed(t *testing.T) {
	srv, err := mockapi.New()
	require.NoError(t, err)

	profiles, err := srv.Seed(mockapi.DefaultSeed)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	require.Equal(t, users.RoleAdmin, profiles[0].Role)
	require.Equal(t, "parent", profiles[2].Name)

	_, err = srv.Seed("teacher:missing-password")
	require.Error(t, err)
	_, err = srv.Seed("janitor:j@school.test:Password1")
	require.Error(t, err)
}
