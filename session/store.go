package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-school-session/internal/config"
	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/token/filestore"
	"github.com/jrsteele09/go-school-session/token/memstore"
	"github.com/jrsteele09/go-school-session/token/redisstore"
)

// OpenStore builds the token store selected by cfg. The returned close func
// releases any connection the store holds and is never nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (token.Store, func() error, error) {
	noop := func() error { return nil }

	switch kind := cfg.GetTokenStore(); kind {
	case config.StoreMemory:
		return memstore.New(), noop, nil

	case config.StoreFile:
		path := cfg.GetTokenFile()
		log.Debug().Str("path", path).Bool("encrypted", cfg.GetTokenPassphrase() != "").Msg("using file token store")
		return filestore.New(path, filestore.WithPassphrase(cfg.GetTokenPassphrase())), noop, nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("[session OpenStore] redis %s: %w: %v", cfg.GetRedisAddr(), redisstore.ErrRedisUnavailable, err)
		}
		log.Debug().Str("addr", cfg.GetRedisAddr()).Str("prefix", cfg.GetRedisKeyPrefix()).Msg("using redis token store")
		return redisstore.New(rdb, cfg.GetRedisKeyPrefix()), rdb.Close, nil

	default:
		return nil, noop, fmt.Errorf("[session OpenStore] unknown token store %q", kind)
	}
}
