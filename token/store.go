package token

import (
	"context"
	"errors"

	apperrors "github.com/jrsteele09/go-school-session/internal/errors"
)

// ErrNoCredentials is returned by Store.Get when nothing is stored
var ErrNoCredentials = apperrors.ErrNoCredentials

// ErrIncompleteCredentials is returned by Store.Set for a pair missing either token
var ErrIncompleteCredentials = errors.New("incomplete credential pair")

// Store holds the current credential pair. Implementations must apply Set
// and Clear to both tokens as one unit: a reader never observes an access
// token from one pair with the refresh token of another.
type Store interface {
	Get(ctx context.Context) (Credentials, error)
	Set(ctx context.Context, creds Credentials) error
	Clear(ctx context.Context) error
}
