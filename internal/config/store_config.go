package config

import (
	"os"
	"path/filepath"
)

type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StoreRedis  StoreKind = "redis"
	StoreMemory StoreKind = "memory"
)

type StoreConfig interface {
	GetTokenStore() StoreKind
	GetTokenFile() string
	GetTokenPassphrase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
}

type Store struct {
	src *source
}

var _ StoreConfig = Store{}

func (s Store) GetTokenStore() StoreKind {
	switch kind := StoreKind(s.src.get("TOKEN_STORE", string(StoreFile))); kind {
	case StoreFile, StoreRedis, StoreMemory:
		return kind
	default:
		return StoreFile
	}
}

// GetTokenFile defaults to ~/.school-session/credentials.json
func (s Store) GetTokenFile() string {
	defaultPath := "credentials.json"
	if home, err := os.UserHomeDir(); err == nil {
		defaultPath = filepath.Join(home, ".school-session", "credentials.json")
	}
	return s.src.get("TOKEN_FILE", defaultPath)
}

// GetTokenPassphrase enables at-rest encryption of the token file when set.
func (s Store) GetTokenPassphrase() string {
	return s.src.get("TOKEN_PASSPHRASE", "")
}

func (s Store) GetRedisAddr() string {
	return s.src.get("REDIS_ADDR", "localhost:6379")
}

func (s Store) GetRedisPassword() string {
	return s.src.get("REDIS_PASSWORD", "")
}

func (s Store) GetRedisDB() int {
	return s.src.int("REDIS_DB", 0)
}

func (s Store) GetRedisKeyPrefix() string {
	return s.src.get("REDIS_KEY_PREFIX", "school-session")
}
