package mockapi

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-school-session/token/jwt"
)

// RevocationList tracks access tokens rejected before their exp claim
type RevocationList interface {
	Add(jti string, exp time.Time)
	IsRevoked(jti string) bool
	Len() int
	Cleanup() // drop entries whose token has expired anyway
}

type memRevocationList struct {
	revoked map[string]time.Time
	lock    sync.RWMutex
}

func newMemRevocationList() RevocationList {
	return &memRevocationList{revoked: make(map[string]time.Time)}
}

func (l *memRevocationList) Add(jti string, exp time.Time) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.revoked[jti] = exp
}

func (l *memRevocationList) IsRevoked(jti string) bool {
	l.lock.RLock()
	defer l.lock.RUnlock()
	_, exists := l.revoked[jti]
	return exists
}

func (l *memRevocationList) Len() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return len(l.revoked)
}

func (l *memRevocationList) Cleanup() {
	l.lock.Lock()
	defer l.lock.Unlock()
	now := jwt.NowTimeFunc()
	for jti, exp := range l.revoked {
		if now.After(exp) {
			delete(l.revoked, jti)
		}
	}
}
