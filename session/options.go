package session

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"github.com/jrsteele09/go-school-session/internal/config"
	"github.com/jrsteele09/go-school-session/renewal"
)

const (
	defaultBaseURL        = "http://localhost:8000"
	defaultAccessTokenTTL = time.Hour
	defaultRefreshTimeout = 10 * time.Second
	defaultLoginTimeout   = 15 * time.Second
	defaultHTTPTimeout    = 30 * time.Second
)

type options struct {
	baseURL        string
	httpClient     *http.Client
	clock          clock.WithDelayedExecution
	accessTokenTTL time.Duration
	margin         time.Duration
	refreshTimeout time.Duration
	loginTimeout   time.Duration
	httpTimeout    time.Duration
	logger         zerolog.Logger
}

func defaultOptions() options {
	return options{
		baseURL:        defaultBaseURL,
		clock:          clock.RealClock{},
		accessTokenTTL: defaultAccessTokenTTL,
		margin:         renewal.DefaultMargin,
		refreshTimeout: defaultRefreshTimeout,
		loginTimeout:   defaultLoginTimeout,
		httpTimeout:    defaultHTTPTimeout,
		logger:         log.Logger,
	}
}

type Option func(*options)

// WithConfig applies the API base URL and the session timings from cfg
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.baseURL = cfg.GetAPIBaseURL()
		o.accessTokenTTL = cfg.GetAccessTokenTTL()
		o.margin = cfg.GetRefreshSafetyMargin()
		o.refreshTimeout = cfg.GetRefreshTimeout()
		o.loginTimeout = cfg.GetLoginTimeout()
		o.httpTimeout = cfg.GetHTTPTimeout()
	}
}

func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithHTTPClient replaces the transport. Its Timeout is left as given.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

func WithClock(c clock.WithDelayedExecution) Option {
	return func(o *options) { o.clock = c }
}

// WithAccessTokenTTL is the lifetime assumed for a stored access token whose
// expiry cannot be determined any other way.
func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(o *options) { o.accessTokenTTL = ttl }
}

func WithRefreshMargin(margin time.Duration) Option {
	return func(o *options) { o.margin = margin }
}

func WithRefreshTimeout(timeout time.Duration) Option {
	return func(o *options) { o.refreshTimeout = timeout }
}

func WithLoginTimeout(timeout time.Duration) Option {
	return func(o *options) { o.loginTimeout = timeout }
}

func WithHTTPTimeout(timeout time.Duration) Option {
	return func(o *options) { o.httpTimeout = timeout }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}
