package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-school-session/client"
	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/token/memstore"
	"github.com/jrsteele09/go-school-session/token/refresh"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type echo struct {
	Path string `json:"path"`
	Body string `json:"body"`
}

func pair(access, refreshToken string) token.Credentials {
	return token.Credentials{AccessToken: access, RefreshToken: refreshToken, TokenType: "bearer", ExpiresIn: 3600}
}

// newClient wires a client to a coordinator the way session.Manager does
func newClient(t *testing.T, b *backend, stored *token.Credentials) (*client.Client, token.Store, *refresh.Coordinator) {
	t.Helper()
	store := memstore.New()
	if stored != nil {
		require.NoError(t, store.Set(context.Background(), *stored))
	}
	c := client.New(b.server.URL, store)
	coordinator := refresh.NewCoordinator(store, c.Auth())
	c.SetRefresher(coordinator)
	return c, store, coordinator
}

type countingRefresher struct {
	calls atomic.Int32
	next  token.Credentials
	err   error
	store token.Store
}

func (r *countingRefresher) Refresh(ctx context.Context, _ token.Credentials) (token.Credentials, error) {
	r.calls.Add(1)
	if r.err != nil {
		return token.Credentials{}, r.err
	}
	if err := r.store.Set(ctx, r.next); err != nil {
		return token.Credentials{}, err
	}
	return r.next, nil
}

func TestAttachesStoredToken(t *testing.T) {
	b := newBackend(t, "T1")
	creds := pair("T1", "R1")
	c, _, _ := newClient(t, b, &creds)

	var out echo
	require.NoError(t, c.Get(context.Background(), "/api/students", &out))
	require.Equal(t, "/api/students", out.Path)

	reqs := b.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, "Bearer T1", reqs[0].Authorization)
	require.NotEmpty(t, reqs[0].RequestID)
}

func TestNoStoredToken(t *testing.T) {
	b := newBackend(t, "T1")
	c, _, _ := newClient(t, b, nil)

	err := c.Get(context.Background(), "/api/students", nil)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	require.ErrorIs(t, err, client.ErrRequestFailed)
	require.Zero(t, b.refreshCalls.Load())

	reqs := b.recorded()
	require.Len(t, reqs, 1)
	require.Empty(t, reqs[0].Authorization)
}

func TestExplicitAuthorizationWins(t *testing.T) {
	b := newBackend(t, "X9")
	creds := pair("T1", "R1")
	c, _, _ := newClient(t, b, &creds)

	tests := []struct {
		name string
		opt  client.RequestOption
	}{
		{name: "option", opt: client.WithAuthorization("Bearer X9")},
		{name: "header", opt: client.WithHeader("Authorization", "Bearer X9")},
		{name: "lowercase header", opt: client.WithHeader("authorization", "Bearer X9")},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.Get(context.Background(), "/api/students", nil, tt.opt))
			reqs := b.recorded()
			require.Len(t, reqs, i+1)
			require.Equal(t, "Bearer X9", reqs[i].Authorization)
		})
	}
	require.Zero(t, b.refreshCalls.Load())
}

func TestWithoutCredentials(t *testing.T) {
	b := newBackend(t, "T1")
	creds := pair("T1", "R1")
	c, _, _ := newClient(t, b, &creds)

	err := c.Get(context.Background(), "/api/students", nil, client.WithoutCredentials())
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	require.Empty(t, b.recorded()[0].Authorization)
	require.Zero(t, b.refreshCalls.Load())
}

func TestExpiredTokenIsRefreshedAndRetried(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "T2")
	b.rotate("R1", token.Response{AccessToken: "T2", RefreshToken: "R2", TokenType: "bearer", ExpiresIn: 3600})
	creds := pair("T1", "R1")
	c, store, _ := newClient(t, b, &creds)

	var out echo
	err := c.Post(ctx, "/api/students", map[string]string{"name": "Grace"}, &out)
	require.NoError(t, err)
	require.Equal(t, `{"name":"Grace"}`, out.Body)

	reqs := b.recorded()
	require.Len(t, reqs, 3)
	require.Equal(t, "/api/students", reqs[0].Path)
	require.Equal(t, "Bearer T1", reqs[0].Authorization)
	require.Equal(t, "/api/auth/refresh", reqs[1].Path)
	require.JSONEq(t, `{"refresh_token":"R1"}`, reqs[1].Body)
	require.Empty(t, reqs[1].Authorization)
	require.Equal(t, "/api/students", reqs[2].Path)
	require.Equal(t, "Bearer T2", reqs[2].Authorization)
	require.Equal(t, reqs[0].RequestID, reqs[2].RequestID)
	require.Equal(t, reqs[0].Body, reqs[2].Body)

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "T2", stored.AccessToken)
	require.Equal(t, "R2", stored.RefreshToken)
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "T2")
	b.rotate("R1", token.Response{AccessToken: "T2", RefreshToken: "R2", TokenType: "bearer", ExpiresIn: 3600})
	creds := pair("T1", "R1")
	c, store, coordinator := newClient(t, b, &creds)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			return c.Get(gctx, "/api/classes", nil)
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, int32(1), b.refreshCalls.Load())
	require.Equal(t, int64(1), coordinator.Exchanges())
	for _, r := range b.recorded() {
		if r.Path == "/api/classes" && r.Authorization != "Bearer T1" {
			require.Equal(t, "Bearer T2", r.Authorization)
		}
	}

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "T2", stored.AccessToken)
}

func TestSingleRetryCeiling(t *testing.T) {
	b := newBackend(t, "never")
	creds := pair("T1", "R1")
	c, store, _ := newClient(t, b, nil)
	refresher := &countingRefresher{next: pair("T2", "R2"), store: store}
	require.NoError(t, store.Set(context.Background(), creds))
	c.SetRefresher(refresher)

	err := c.Get(context.Background(), "/api/students", nil)
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	require.NotErrorIs(t, err, client.ErrSessionExpired)
	require.Equal(t, int32(1), refresher.calls.Load())
	require.Len(t, b.recorded(), 2)
}

func TestRefreshFailureIsSessionExpired(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t, "T2")
	creds := pair("T1", "R1")
	c, store, _ := newClient(t, b, &creds)

	err := c.Get(ctx, "/api/students", nil)
	require.ErrorIs(t, err, client.ErrSessionExpired)
	require.Equal(t, int32(1), b.refreshCalls.Load())

	_, err = store.Get(ctx)
	require.ErrorIs(t, err, token.ErrNoCredentials)

	// No retry was sent after the failed refresh.
	reqs := b.recorded()
	require.Len(t, reqs, 2)
	require.Equal(t, "/api/auth/refresh", reqs[1].Path)
}

func TestAuthEndpointsNeverRefresh(t *testing.T) {
	b := newBackend(t, "T1")
	creds := pair("T1", "R1")
	c, store, _ := newClient(t, b, nil)
	refresher := &countingRefresher{next: pair("T2", "R2"), store: store}
	require.NoError(t, store.Set(context.Background(), creds))
	c.SetRefresher(refresher)

	for _, path := range []string{"/api/auth/login", "/api/auth/refresh"} {
		_, err := c.Execute(context.Background(), http.MethodPost, path, client.WithAuthorization("Bearer T1"))
		require.True(t, client.IsStatus(err, http.StatusUnauthorized), path)
	}
	require.Zero(t, refresher.calls.Load())
}

func TestWithoutRefresh(t *testing.T) {
	b := newBackend(t, "T2")
	creds := pair("T1", "R1")
	c, _, _ := newClient(t, b, &creds)

	err := c.Get(context.Background(), "/api/students", nil, client.WithoutRefresh())
	require.True(t, client.IsStatus(err, http.StatusUnauthorized))
	require.Zero(t, b.refreshCalls.Load())
}

func TestRequestError(t *testing.T) {
	b := newBackend(t, "T1")
	creds := pair("T1", "R1")
	c, _, _ := newClient(t, b, &creds)

	err := c.Get(context.Background(), "/api/teapot", nil)
	var reqErr *client.RequestError
	require.True(t, errors.As(err, &reqErr))
	require.Equal(t, http.StatusTeapot, reqErr.StatusCode)
	require.Contains(t, reqErr.Body, "short and stout")
	require.Equal(t, http.MethodGet, reqErr.Method)
	require.Zero(t, b.refreshCalls.Load())
}

func TestNetworkError(t *testing.T) {
	b := newBackend(t, "T1")
	creds := pair("T1", "R1")
	c, store, _ := newClient(t, b, &creds)
	b.server.Close()

	err := c.Get(context.Background(), "/api/students", nil)
	require.ErrorIs(t, err, client.ErrNetwork)
	var netErr *client.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, "/api/students", netErr.Path)

	_, err = store.Get(context.Background())
	require.NoError(t, err, "a network failure never ends the session")
}

func TestQueryAndHeaders(t *testing.T) {
	b := newBackend(t, "T1")
	creds := pair("T1", "R1")
	c, _, _ := newClient(t, b, &creds)

	resp, err := c.Execute(context.Background(), http.MethodGet, "api/results",
		client.WithQuery(url.Values{"term": {"spring"}}),
		client.WithHeader("X-Trace", "abc"),
	)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out echo
	require.NoError(t, resp.Decode(&out))
	require.Equal(t, "/api/results", out.Path)
}

func TestBadJSONBody(t *testing.T) {
	b := newBackend(t, "T1")
	c, _, _ := newClient(t, b, nil)

	err := c.Post(context.Background(), "/api/students", make(chan int), nil)
	require.Error(t, err)
	require.Empty(t, b.recorded())
}
