package mockapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-school-session/internal/config"
	"github.com/jrsteele09/go-school-session/token/jwt"
	"github.com/jrsteele09/go-school-session/users"
)

const (
	defaultSecret     = "mock-api-secret"
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Server is an in-process stand-in for the school backend's auth API. It
// issues HS256 access tokens and rotating refresh tokens, and exposes a
// generic resource surface behind bearer authentication.
type Server struct {
	env        string
	mux        *http.ServeMux
	routes     []string
	cors       config.CorsConfig
	accounts   AccountRepo
	grants     GrantRepo
	creator    *jwt.Creator
	refreshTTL time.Duration

	refreshDelay atomic.Int64

	lock          sync.Mutex
	issued        map[string]time.Time // jti to exp of live access tokens
	revoked       RevocationList
	mail          map[string]Mail // normalized email to last mail sent
	actionTokens  map[string]Mail // action token to mail
	refreshCalls  atomic.Int64
	loginCalls    atomic.Int64
	rejectedCalls atomic.Int64
}

// Mail is a message the backend would have sent
type Mail struct {
	Kind  string // "verify-email" or "reset-password"
	Email string
	Token string
}

type Option func(*options)

type options struct {
	env        string
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	cors       config.CorsConfig
}

func WithEnv(env string) Option {
	return func(o *options) { o.env = env }
}

func WithSecret(secret string) Option {
	return func(o *options) { o.secret = secret }
}

// WithAccessTokenTTL sets the lifetime of issued access tokens, reported to
// clients as expires_in.
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(o *options) { o.accessTTL = ttl }
}

func WithRefreshTokenTTL(ttl time.Duration) Option {
	return func(o *options) { o.refreshTTL = ttl }
}

func WithCors(cors config.CorsConfig) Option {
	return func(o *options) { o.cors = cors }
}

func New(opts ...Option) (*Server, error) {
	o := options{
		env:        "TEST",
		secret:     defaultSecret,
		accessTTL:  time.Hour,
		refreshTTL: defaultRefreshTTL,
		cors:       config.Cors{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	creator, err := jwt.NewCreator(o.secret, o.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("[mockapi New] failed to create token creator: %w", err)
	}

	s := &Server{
		env:          o.env,
		mux:          http.NewServeMux(),
		cors:         o.cors,
		accounts:     newMemAccountRepo(),
		grants:       newMemGrantRepo(),
		creator:      creator,
		refreshTTL:   o.refreshTTL,
		issued:       make(map[string]time.Time),
		revoked:      newMemRevocationList(),
		mail:         make(map[string]Mail),
		actionTokens: make(map[string]Mail),
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// AddAccount creates an active account with a bcrypt hashed password
func (s *Server) AddAccount(name, email, password string, role users.Role) (users.Profile, error) {
	if !role.Valid() {
		return users.Profile{}, fmt.Errorf("[mockapi AddAccount] unknown role %q", role)
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return users.Profile{}, fmt.Errorf("[mockapi AddAccount] failed to hash password: %w", err)
	}

	account := &Account{
		Profile: users.Profile{
			Name:   name,
			Email:  email,
			Role:   role,
			Status: users.StatusActive,
		},
		PasswordHash: hash,
	}
	if err := s.accounts.Upsert(account); err != nil {
		return users.Profile{}, err
	}
	return account.Profile, nil
}

// DisableAccount makes further logins and refreshes for email fail with 403
func (s *Server) DisableAccount(email string) error {
	return s.accounts.SetStatus(email, users.StatusDisabled)
}

// RevokeAccessTokens rejects every access token issued so far, as if they
// had all expired. Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for jti, exp := range s.issued {
		s.revoked.Add(jti, exp)
	}
	clear(s.issued)
	s.revoked.Cleanup()
}

// RevokedAccessTokens is the number of unexpired access tokens on the
// revocation list
func (s *Server) RevokedAccessTokens() int {
	return s.revoked.Len()
}

// RevokeRefreshTokens drops every outstanding refresh token of the user
func (s *Server) RevokeRefreshTokens(userID int64) error {
	return s.grants.DeleteByUserID(userID)
}

// SetRefreshDelay holds every refresh response for d
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// RefreshCalls counts requests to the refresh endpoint
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

func (s *Server) LoginCalls() int64 {
	return s.loginCalls.Load()
}

// RejectedCalls counts requests refused by bearer authentication
func (s *Server) RejectedCalls() int64 {
	return s.rejectedCalls.Load()
}

// OutstandingRefreshTokens is the number of refresh tokens not yet spent
func (s *Server) OutstandingRefreshTokens() int {
	return s.grants.Count()
}

// LastMail returns the last message sent to email
func (s *Server) LastMail(email string) (Mail, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	m, ok := s.mail[users.NormalizeEmail(email)]
	return m, ok
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Info().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}
