package client

import apperrors "github.com/jrsteele09/go-school-session/internal/errors"

var (
	ErrSessionExpired   = apperrors.ErrSessionExpired
	ErrNotAuthenticated = apperrors.ErrNotAuthenticated
	ErrNetwork          = apperrors.ErrNetwork
	ErrRequestFailed    = apperrors.ErrRequestFailed
)

type (
	NetworkError = apperrors.NetworkError
	RequestError = apperrors.RequestError
)

// IsStatus reports whether err is a *RequestError with the given status code
func IsStatus(err error, statusCode int) bool {
	return apperrors.IsStatus(err, statusCode)
}
