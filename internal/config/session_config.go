package config

import "time"

type SessionConfig interface {
	GetAccessTokenTTL() time.Duration
	GetRefreshSafetyMargin() time.Duration
	GetRefreshTimeout() time.Duration
	GetLoginTimeout() time.Duration
	GetHTTPTimeout() time.Duration
}

type Session struct {
	src *source
}

var _ SessionConfig = Session{}

// GetAccessTokenTTL is the lifetime assumed for an access token whose real
// expiry is unknown. It must track the backend's ACCESS_TOKEN_TTL.
func (s Session) GetAccessTokenTTL() time.Duration {
	return s.src.duration("ACCESS_TOKEN_TTL", 1*time.Hour)
}

func (s Session) GetRefreshSafetyMargin() time.Duration {
	return s.src.duration("REFRESH_SAFETY_MARGIN", 60*time.Second)
}

func (s Session) GetRefreshTimeout() time.Duration {
	return s.src.duration("REFRESH_TIMEOUT", 10*time.Second)
}

func (s Session) GetLoginTimeout() time.Duration {
	return s.src.duration("LOGIN_TIMEOUT", 15*time.Second)
}

func (s Session) GetHTTPTimeout() time.Duration {
	return s.src.duration("HTTP_TIMEOUT", 30*time.Second)
}
