package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"k8s.io/utils/clock"

	"github.com/jrsteele09/go-school-session/client"
	apperrors "github.com/jrsteele09/go-school-session/internal/errors"
	"github.com/jrsteele09/go-school-session/internal/utils"
	"github.com/jrsteele09/go-school-session/renewal"
	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/token/jwt"
	"github.com/jrsteele09/go-school-session/token/refresh"
	"github.com/jrsteele09/go-school-session/users"
)

// Manager owns one user session: its state, its profile and the components
// that keep its credentials fresh. It is the only writer of session state.
type Manager struct {
	store       token.Store
	client      *client.Client
	auth        *client.AuthAPI
	coordinator *refresh.Coordinator
	scheduler   *renewal.Scheduler
	clock       clock.PassiveClock
	logger      zerolog.Logger

	accessTokenTTL time.Duration
	margin         time.Duration
	loginTimeout   time.Duration
	httpTimeout    time.Duration
	storeTimeout   time.Duration

	lock        sync.Mutex
	state       State
	user        *users.Profile
	gen         uint64
	epoch       uint64 // refresh epoch owned by the current session
	subscribers map[uint64]func(Snapshot)
	nextSubID   uint64

	background sync.WaitGroup
}

// New creates a Manager around store. Call Bootstrap to pick up a session
// persisted by an earlier run.
func New(store token.Store, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		store:          store,
		clock:          o.clock,
		logger:         o.logger,
		accessTokenTTL: o.accessTokenTTL,
		margin:         o.margin,
		loginTimeout:   o.loginTimeout,
		httpTimeout:    o.httpTimeout,
		storeTimeout:   o.refreshTimeout,
		subscribers:    make(map[uint64]func(Snapshot)),
	}

	clientOpts := []client.Option{client.WithLogger(o.logger)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(o.httpClient))
	} else {
		clientOpts = append(clientOpts, client.WithTimeout(o.httpTimeout))
	}
	m.client = client.New(o.baseURL, store, clientOpts...)
	m.auth = m.client.Auth()

	m.coordinator = refresh.NewCoordinator(store, m.auth,
		refresh.WithTimeout(o.refreshTimeout),
		refresh.WithObserver(observer{m: m}),
		refresh.WithLogger(o.logger),
	)
	m.client.SetRefresher(m.coordinator)

	m.scheduler = renewal.New(m.coordinator,
		renewal.WithClock(o.clock),
		renewal.WithMargin(o.margin),
		renewal.WithOnFailure(m.expire),
		renewal.WithLogger(o.logger),
	)
	return m
}

// Login authenticates with email and password, replacing any current
// session. On failure the store is cleared and the session is
// Unauthenticated.
func (m *Manager) Login(ctx context.Context, email, password string) (users.Profile, error) {
	m.lock.Lock()
	m.gen++
	gen := m.gen
	m.scheduler.Cancel()
	m.epoch = m.coordinator.Invalidate()
	snap, changed := m.setLocked(Authenticating, nil)
	m.lock.Unlock()
	if changed {
		m.notify(snap)
	}

	ctx, cancel := context.WithTimeout(ctx, m.loginTimeout)
	defer cancel()

	creds, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return users.Profile{}, m.discard(gen, apperrors.Wrapf(err, "[session Login] login failed"))
	}
	if err := m.store.Set(ctx, creds); err != nil {
		return users.Profile{}, m.discard(gen, apperrors.Wrapf(err, "[session Login] failed to store credentials"))
	}

	profile, err := m.auth.Me(ctx)
	if err != nil {
		return users.Profile{}, m.discard(gen, apperrors.Wrapf(err, "[session Login] failed to fetch profile"))
	}
	if err := m.authenticate(ctx, gen, profile); err != nil {
		return users.Profile{}, err
	}

	m.logger.Info().Int64("user_id", profile.ID).Str("role", string(profile.Role)).Msg("logged in")
	return profile, nil
}

// Bootstrap restores a persisted session. With nothing stored it returns nil
// and the session stays Unauthenticated. If the stored pair cannot be used,
// even after a refresh, the store is cleared and the error returned.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.lock.Lock()
	if m.state != Unauthenticated {
		m.lock.Unlock()
		return nil
	}
	gen := m.gen
	m.lock.Unlock()

	if _, err := m.store.Get(ctx); err != nil {
		if apperrors.Is(err, token.ErrNoCredentials) {
			return nil
		}
		return m.discard(gen, apperrors.Wrapf(err, "[session Bootstrap] failed to read stored credentials"))
	}

	ctx, cancel := context.WithTimeout(ctx, m.loginTimeout)
	defer cancel()

	profile, err := m.auth.Me(ctx)
	if err != nil {
		return m.discard(gen, apperrors.Wrapf(err, "[session Bootstrap] failed to fetch profile"))
	}
	if err := m.authenticate(ctx, gen, profile); err != nil {
		return err
	}

	m.logger.Info().Int64("user_id", profile.ID).Msg("session restored")
	return nil
}

// authenticate moves generation gen to Authenticated and arms renewal for
// whatever pair is stored now, which may be newer than the one logged in with.
func (m *Manager) authenticate(ctx context.Context, gen uint64, profile users.Profile) error {
	creds, err := m.store.Get(ctx)
	if err != nil {
		return m.discard(gen, apperrors.Wrapf(err, "[session authenticate] failed to read stored credentials"))
	}
	lifetime := m.remainingLifetime(creds)

	m.lock.Lock()
	if m.gen != gen {
		m.lock.Unlock()
		return ErrSuperseded
	}
	snap, _ := m.setLocked(Authenticated, &profile)
	m.scheduler.Schedule(creds, lifetime)
	m.lock.Unlock()

	m.notify(snap)
	return nil
}

// discard ends generation gen after a failed login or bootstrap. A later
// generation is left alone.
func (m *Manager) discard(gen uint64, err error) error {
	m.lock.Lock()
	if m.gen != gen {
		m.lock.Unlock()
		return err
	}
	m.clearStore()
	snap, changed := m.setLocked(Unauthenticated, nil)
	m.lock.Unlock()

	if changed {
		m.notify(snap)
	}
	return err
}

// Logout ends the session without contacting the backend. It always
// succeeds and may be called any number of times. Requests already in flight
// are not cancelled.
func (m *Manager) Logout() {
	m.lock.Lock()
	m.gen++
	m.scheduler.Cancel()
	m.epoch = m.coordinator.Invalidate()
	m.clearStore()
	snap, changed := m.setLocked(Unauthenticated, nil)
	m.lock.Unlock()

	if changed {
		m.logger.Info().Msg("logged out")
		m.notify(snap)
	}
}

// expire ends an authenticated session whose credentials could not be
// renewed. The coordinator has already cleared the store.
func (m *Manager) expire(err error) {
	m.lock.Lock()
	m.expireLocked(err)
}

// expireLocked is called with m.lock held and releases it.
func (m *Manager) expireLocked(err error) {
	if !m.state.IsAuthenticated() {
		m.lock.Unlock()
		return
	}
	m.scheduler.Cancel()
	snap, _ := m.setLocked(Unauthenticated, nil)
	m.lock.Unlock()

	m.logger.Warn().Err(err).Msg("session expired")
	m.notify(snap)
}

func (m *Manager) clearStore() {
	ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear stored credentials")
	}
}

// RefreshUser re-fetches the current user's profile
func (m *Manager) RefreshUser(ctx context.Context) (users.Profile, error) {
	m.lock.Lock()
	if !m.state.IsAuthenticated() {
		m.lock.Unlock()
		return users.Profile{}, ErrNotAuthenticated
	}
	gen := m.gen
	m.lock.Unlock()

	profile, err := m.auth.Me(ctx)
	if err != nil {
		return users.Profile{}, apperrors.Wrapf(err, "[session RefreshUser] failed to fetch profile")
	}
	m.replaceUser(gen, profile)
	return profile, nil
}

func (m *Manager) replaceUser(gen uint64, profile users.Profile) {
	m.lock.Lock()
	if m.gen != gen || !m.state.IsAuthenticated() {
		m.lock.Unlock()
		return
	}
	snap, _ := m.setLocked(m.state, &profile)
	m.lock.Unlock()
	m.notify(snap)
}

func (m *Manager) refetchUser(gen uint64) {
	defer m.background.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.httpTimeout)
	defer cancel()

	profile, err := m.auth.Me(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("profile re-fetch after refresh failed")
		return
	}
	m.replaceUser(gen, profile)
}

// remainingLifetime resolves how long the access token in creds has left:
// from its issued expiry, else from its exp claim, else the configured TTL.
func (m *Manager) remainingLifetime(creds token.Credentials) time.Duration {
	now := m.clock.Now()
	if remaining, ok := creds.Remaining(now); ok {
		return remaining
	}
	if exp, ok := jwt.ExpiresAt(creds.AccessToken); ok {
		return exp.Sub(now)
	}
	m.logger.Warn().
		Dur("assumed_ttl", m.accessTokenTTL).
		Msg("access token expiry unknown, assuming ACCESS_TOKEN_TTL; it must match the backend setting")
	return m.accessTokenTTL
}

// setLocked must be called with m.lock held
func (m *Manager) setLocked(state State, user *users.Profile) (Snapshot, bool) {
	changed := m.state != state || m.user != user
	m.state = state
	m.user = user
	return m.snapshotLocked(), changed
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state}
	if m.user != nil {
		snap.User = utils.Ptr(*m.user)
	}
	return snap
}

// Subscribe registers fn for every state or profile change. fn runs on the
// goroutine that made the change and must not block or call back into the
// Manager. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	return func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Manager) notify(snap Snapshot) {
	m.lock.Lock()
	subscribers := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.lock.Unlock()

	m.logger.Debug().Stringer("state", snap.State).Msg("session state changed")
	for _, fn := range subscribers {
		fn(snap)
	}
}

func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

func (m *Manager) Snapshot() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.snapshotLocked()
}

// User returns a copy of the current profile, nil when unauthenticated
func (m *Manager) User() *users.Profile {
	return m.Snapshot().User
}

func (m *Manager) IsAuthenticated() bool {
	return m.State().IsAuthenticated()
}

// Client is the request executor bound to this session
func (m *Manager) Client() *client.Client {
	return m.client
}

// Request sends body as JSON and decodes the response into out. Either may
// be nil.
func (m *Manager) Request(ctx context.Context, method, path string, body, out any) error {
	return m.client.Do(ctx, method, path, body, out)
}

// TokenSource exposes the session to oauth2-aware transports. Each Token
// call returns the stored access token, renewed first if it is inside the
// refresh margin.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

// HTTPClient returns an http.Client that authenticates with the session's
// access token, for endpoints outside the JSON API.
func (m *Manager) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, m.TokenSource(ctx))
}

// Close stops proactive renewal and waits for background profile fetches.
// The stored credentials are kept for the next Bootstrap.
func (m *Manager) Close() {
	m.scheduler.Cancel()
	m.background.Wait()
}

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	creds, err := ts.m.store.Get(ts.ctx)
	if err != nil {
		if apperrors.Is(err, token.ErrNoCredentials) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}

	if remaining, ok := creds.Remaining(ts.m.clock.Now()); ok && remaining <= ts.m.margin {
		if creds, err = ts.m.coordinator.Refresh(ts.ctx, creds); err != nil {
			return nil, err
		}
	}
	return creds.OAuth2(), nil
}

// observer moves the session between Authenticated and
// RefreshingInBackground as refresh tickets come and go. Callbacks from a
// ticket of an earlier epoch arrive after Login or Logout replaced the session
// and are ignored.
type observer struct {
	m *Manager
}

func (o observer) RefreshStarted(epoch uint64) {
	m := o.m
	m.lock.Lock()
	if m.epoch != epoch || m.state != Authenticated {
		m.lock.Unlock()
		return
	}
	snap, _ := m.setLocked(RefreshingInBackground, m.user)
	m.lock.Unlock()
	m.notify(snap)
}

func (o observer) RefreshSucceeded(epoch uint64, creds token.Credentials) {
	m := o.m
	m.lock.Lock()
	if m.epoch != epoch || !m.state.IsAuthenticated() {
		m.lock.Unlock()
		return
	}
	gen := m.gen
	snap, changed := m.setLocked(Authenticated, m.user)
	m.scheduler.Schedule(creds, m.remainingLifetime(creds))
	// The profile fetch goes through the client and may itself need the
	// ticket this callback runs in, so it cannot be done inline.
	m.background.Add(1)
	m.lock.Unlock()

	if changed {
		m.notify(snap)
	}
	go m.refetchUser(gen)
}

func (o observer) RefreshFailed(epoch uint64, err error) {
	m := o.m
	m.lock.Lock()
	if m.epoch != epoch {
		m.lock.Unlock()
		return
	}
	m.expireLocked(err)
}
