package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-school-session/token"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps connection level failures
var ErrRedisUnavailable = errors.New("redis unavailable")

var _ token.Store = (*Store)(nil)

// Store keeps the pair in three string keys: <prefix>:access_token,
// <prefix>:refresh_token and <prefix>:meta. The keys are written in one
// MULTI/EXEC, read with one MGET and deleted with one DEL, so they always
// change together.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL expires all keys ttl after each Set, typically the refresh token
// lifetime. Zero keeps them until Clear.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

func New(client redis.UniversalClient, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = "school-session"
	}
	s := &Store{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type meta struct {
	TokenType string    `json:"token_type,omitempty"`
	ExpiresIn int64     `json:"expires_in,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitempty"`
}

func (s *Store) accessKey() string  { return s.prefix + ":access_token" }
func (s *Store) refreshKey() string { return s.prefix + ":refresh_token" }
func (s *Store) metaKey() string    { return s.prefix + ":meta" }

func (s *Store) keys() []string {
	return []string{s.accessKey(), s.refreshKey(), s.metaKey()}
}

func (s *Store) Get(ctx context.Context) (token.Credentials, error) {
	values, err := s.client.MGet(ctx, s.keys()...).Result()
	if err != nil {
		return token.Credentials{}, fmt.Errorf("[redisstore Get] %w: %v", ErrRedisUnavailable, err)
	}

	access, _ := values[0].(string)
	refresh, _ := values[1].(string)
	if access == "" || refresh == "" {
		return token.Credentials{}, token.ErrNoCredentials
	}

	creds := token.Credentials{AccessToken: access, RefreshToken: refresh}
	if raw, ok := values[2].(string); ok && raw != "" {
		var m meta
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return token.Credentials{}, fmt.Errorf("[redisstore Get] decode meta: %w", err)
		}
		creds.TokenType = m.TokenType
		creds.ExpiresIn = m.ExpiresIn
		creds.IssuedAt = m.IssuedAt
	}
	return creds, nil
}

func (s *Store) Set(ctx context.Context, creds token.Credentials) error {
	if !creds.Valid() {
		return token.ErrIncompleteCredentials
	}

	rawMeta, err := json.Marshal(meta{
		TokenType: creds.TokenType,
		ExpiresIn: creds.ExpiresIn,
		IssuedAt:  creds.IssuedAt,
	})
	if err != nil {
		return fmt.Errorf("[redisstore Set] encode meta: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.MSet(ctx,
			s.accessKey(), creds.AccessToken,
			s.refreshKey(), creds.RefreshToken,
			s.metaKey(), string(rawMeta),
		)
		if s.ttl > 0 {
			for _, key := range s.keys() {
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("[redisstore Set] %w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.keys()...).Err(); err != nil {
		return fmt.Errorf("[redisstore Clear] %w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
