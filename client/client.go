package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-school-session/internal/errors"
	"github.com/jrsteele09/go-school-session/token"
)

const (
	LoginPath   = "/api/auth/login"
	RefreshPath = "/api/auth/refresh"
	MePath      = "/api/users/me"

	RequestIDHeader = "X-Request-ID"
)

// Refresher obtains a credential pair newer than current. refresh.Coordinator
// is the production implementation.
type Refresher interface {
	Refresh(ctx context.Context, current token.Credentials) (token.Credentials, error)
}

// Client executes requests against the backend with the stored access token
// attached. A request rejected with 401 is retried once after a refresh.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      token.Store
	logger     zerolog.Logger

	lock      sync.RWMutex
	refresher Refresher
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout bounds every attempt, including reading the response body
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithRefresher(refresher Refresher) Option {
	return func(c *Client) {
		c.refresher = refresher
	}
}

// New creates a client for the API at baseURL, e.g. http://localhost:8000
func New(baseURL string, store token.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		store:      store,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRefresher installs the refresher after construction. The coordinator
// needs the client's AuthAPI as its exchanger, so the two are wired in two steps.
func (c *Client) SetRefresher(refresher Refresher) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.refresher = refresher
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Store() token.Store {
	return c.store
}

// Auth returns the typed authentication endpoints
func (c *Client) Auth() *AuthAPI {
	return &AuthAPI{client: c}
}

func (c *Client) getRefresher() Refresher {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.refresher
}

// Execute sends method path and returns the 2xx response. Non-2xx responses
// come back as *RequestError, transport failures as *NetworkError, and a
// failed refresh as ErrSessionExpired.
func (c *Client) Execute(ctx context.Context, method, path string, opts ...RequestOption) (*Response, error) {
	cfg := newRequestConfig(opts)
	if cfg.err != nil {
		return nil, apperrors.Wrapf(cfg.err, "[client Execute] %s %s", method, path)
	}

	requestID := uuid.NewString()
	logger := c.logger.With().Str("request_id", requestID).Str("method", method).Str("path", path).Logger()

	creds, hasCreds := c.storedCredentials(ctx)
	resp, err := c.send(ctx, cfg, method, path, requestID, func(req *http.Request) {
		switch {
		case cfg.authorization != "":
			req.Header.Set("Authorization", cfg.authorization)
		case hasCreds && !cfg.withoutCredentials:
			creds.SetAuthHeader(req)
		}
	})
	if err != nil {
		logger.Debug().Err(err).Msg("request failed")
		return nil, err
	}
	logger.Debug().Int("status", resp.StatusCode).Msg("response")

	if resp.StatusCode != http.StatusUnauthorized || !hasCreds || !cfg.refreshable(path) {
		return finish(method, path, resp)
	}
	refresher := c.getRefresher()
	if refresher == nil {
		return finish(method, path, resp)
	}

	logger.Info().Msg("access token rejected, refreshing session")
	fresh, err := refresher.Refresh(ctx, creds)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, cfg, method, path, requestID, fresh.SetAuthHeader)
	if err != nil {
		logger.Debug().Err(err).Msg("retry failed")
		return nil, err
	}
	logger.Debug().Int("status", resp.StatusCode).Msg("retry response")
	return finish(method, path, resp)
}

func (c *Client) storedCredentials(ctx context.Context) (token.Credentials, bool) {
	creds, err := c.store.Get(ctx)
	if err != nil {
		if !apperrors.Is(err, token.ErrNoCredentials) {
			log.Err(err).Msg("Failed to read stored credentials")
		}
		return token.Credentials{}, false
	}
	return creds, true
}

func (c *Client) send(ctx context.Context, cfg *requestConfig, method, path, requestID string, authorize func(*http.Request)) (*Response, error) {
	var body io.Reader
	if cfg.body != nil {
		body = bytes.NewReader(cfg.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, cfg.query), body)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[client Execute] build %s %s", method, path)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	for key, values := range cfg.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	authorize(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.NetworkError{Method: method, Path: path, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &apperrors.NetworkError{Method: method, Path: path, Err: err}
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

func (c *Client) url(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

func finish(method, path string, resp *Response) (*Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	return nil, &apperrors.RequestError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
	}
}

// isAuthEndpoint reports whether a 401 from path means bad credentials
// rather than an expired access token.
func isAuthEndpoint(path string) bool {
	return strings.HasPrefix(path, RefreshPath) || strings.HasPrefix(path, LoginPath)
}

// Do sends body as JSON, if not nil, and decodes the response into out, if not nil
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	if body != nil {
		opts = append([]RequestOption{WithJSONBody(body)}, opts...)
	}
	resp, err := c.Execute(ctx, method, path, opts...)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}
