package mockapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var ErrGrantNotFound = errors.New("refresh token not found")

// StoredRefreshToken is the server side record of a refresh token. Only the
// hash of the token is kept; the client holds the token itself.
type StoredRefreshToken struct {
	TokenHash string
	UserID    int64
	Iat       time.Time
	ExpiresAt time.Time
}

// GrantRepo stores refresh tokens keyed by their hash. Take removes the
// record it returns, so every refresh token can be spent once.
type GrantRepo interface {
	Upsert(grant *StoredRefreshToken) error
	Take(tokenHash string) (*StoredRefreshToken, error)
	DeleteByUserID(userID int64) error
	Count() int
}

var _ GrantRepo = (*memGrantRepo)(nil)

type memGrantRepo struct {
	grants map[string]*StoredRefreshToken
	lock   sync.Mutex
}

func newMemGrantRepo() *memGrantRepo {
	return &memGrantRepo{grants: make(map[string]*StoredRefreshToken)}
}

func (gr *memGrantRepo) Upsert(grant *StoredRefreshToken) error {
	gr.lock.Lock()
	defer gr.lock.Unlock()
	gr.grants[grant.TokenHash] = grant
	return nil
}

func (gr *memGrantRepo) Take(tokenHash string) (*StoredRefreshToken, error) {
	gr.lock.Lock()
	defer gr.lock.Unlock()

	grant, ok := gr.grants[tokenHash]
	if !ok {
		return nil, ErrGrantNotFound
	}
	delete(gr.grants, tokenHash)
	return grant, nil
}

func (gr *memGrantRepo) DeleteByUserID(userID int64) error {
	gr.lock.Lock()
	defer gr.lock.Unlock()

	for hash, grant := range gr.grants {
		if grant.UserID == userID {
			delete(gr.grants, hash)
		}
	}
	return nil
}

func (gr *memGrantRepo) Count() int {
	gr.lock.Lock()
	defer gr.lock.Unlock()
	return len(gr.grants)
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
