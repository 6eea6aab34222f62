package client

import (
	"encoding/json"
	"net/http"
	"net/url"
)

type requestConfig struct {
	body               []byte
	header             http.Header
	query              url.Values
	authorization      string
	withoutCredentials bool
	withoutRefresh     bool
	err                error
}

type RequestOption func(*requestConfig)

func newRequestConfig(opts []RequestOption) *requestConfig {
	cfg := &requestConfig{header: http.Header{}}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// refreshable reports whether a 401 for this request may be answered with a
// refresh and one retry.
func (cfg *requestConfig) refreshable(path string) bool {
	return !cfg.withoutRefresh && !cfg.withoutCredentials && !isAuthEndpoint(path)
}

// WithJSONBody encodes v as the request body. The encoded bytes are kept so a
// retry resends exactly the same body.
func WithJSONBody(v any) RequestOption {
	return func(cfg *requestConfig) {
		data, err := json.Marshal(v)
		if err != nil {
			cfg.err = err
			return
		}
		cfg.body = data
	}
}

// WithHeader adds a header to the request. An Authorization header, in any
// letter case, behaves like WithAuthorization.
func WithHeader(key, value string) RequestOption {
	return func(cfg *requestConfig) {
		if http.CanonicalHeaderKey(key) == "Authorization" {
			cfg.authorization = value
			return
		}
		cfg.header.Add(key, value)
	}
}

func WithQuery(query url.Values) RequestOption {
	return func(cfg *requestConfig) {
		if cfg.query == nil {
			cfg.query = url.Values{}
		}
		for key, values := range query {
			for _, v := range values {
				cfg.query.Add(key, v)
			}
		}
	}
}

// WithAuthorization sends value as the Authorization header verbatim instead
// of the stored access token. If the backend answers 401 the request still
// takes part in the refresh, and the retry carries the new stored token.
func WithAuthorization(value string) RequestOption {
	return func(cfg *requestConfig) {
		cfg.authorization = value
	}
}

// WithoutCredentials sends the request with no Authorization header and never
// refreshes on 401.
func WithoutCredentials() RequestOption {
	return func(cfg *requestConfig) {
		cfg.withoutCredentials = true
	}
}

// WithoutRefresh returns a 401 to the caller as a *RequestError
func WithoutRefresh() RequestOption {
	return func(cfg *requestConfig) {
		cfg.withoutRefresh = true
	}
}
