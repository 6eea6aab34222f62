package client_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-school-session/token"
)

type recordedRequest struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          string
}

// backend accepts one access token at a time and rotates refresh tokens like
// the real API.
type backend struct {
	server *httptest.Server

	lock      sync.Mutex
	valid     string
	rotations map[string]token.Response
	login     token.Response
	requests  []recordedRequest

	refreshCalls atomic.Int32
	loginCalls   atomic.Int32
}

func newBackend(t *testing.T, valid string) *backend {
	t.Helper()
	b := &backend{valid: valid, rotations: map[string]token.Response{}}
	b.server = httptest.NewServer(http.HandlerFunc(b.serveHTTP))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) rotate(refreshToken string, next token.Response) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.rotations[refreshToken] = next
}

func (b *backend) setValid(accessToken string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.valid = accessToken
}

func (b *backend) recorded() []recordedRequest {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

func (b *backend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.lock.Lock()
	b.requests = append(b.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
		Body:          string(body),
	})
	b.lock.Unlock()

	switch {
	case r.URL.Path == "/api/auth/login":
		b.loginCalls.Add(1)
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.Unmarshal(body, &req)
		if req.Email != "teacher@school.test" || req.Password != "Password1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
			return
		}
		b.lock.Lock()
		resp := b.login
		b.lock.Unlock()
		writeJSON(w, http.StatusOK, resp)

	case r.URL.Path == "/api/auth/refresh":
		b.refreshCalls.Add(1)
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.Unmarshal(body, &req)
		b.lock.Lock()
		next, ok := b.rotations[req.RefreshToken]
		if ok {
			delete(b.rotations, req.RefreshToken)
			b.valid = next.AccessToken
		}
		b.lock.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid refresh token"})
			return
		}
		writeJSON(w, http.StatusOK, next)

	case strings.HasPrefix(r.URL.Path, "/api/auth/"):
		w.WriteHeader(http.StatusOK)

	case r.URL.Path == "/api/teapot":
		http.Error(w, "short and stout", http.StatusTeapot)

	default:
		b.lock.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+b.valid
		b.lock.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		if r.URL.Path == "/api/users/me" {
			writeJSON(w, http.StatusOK, map[string]any{
				"id": 7, "name": "Ada Teacher", "email": "teacher@school.test", "role": "teacher", "status": "active",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "body": string(body)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
