package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-school-session/token"
)

var _ token.Store = (*Store)(nil)

// Store keeps the credential pair in process memory. It does not survive a
// restart; use filestore or redisstore for that.
type Store struct {
	creds *token.Credentials
	lock  sync.RWMutex
}

func New() *Store {
	return &Store{}
}

func (s *Store) Get(_ context.Context) (token.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.creds == nil {
		return token.Credentials{}, token.ErrNoCredentials
	}
	return *s.creds, nil
}

func (s *Store) Set(_ context.Context, creds token.Credentials) error {
	if !creds.Valid() {
		return token.ErrIncompleteCredentials
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.creds = &creds
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.creds = nil
	return nil
}
