package refresh

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/jrsteele09/go-school-session/internal/errors"
	"github.com/jrsteele09/go-school-session/token"
)

// ErrSessionExpired is returned by every waiter of a failed ticket
var ErrSessionExpired = apperrors.ErrSessionExpired

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	defaultTimeout = 10 * time.Second
	// Bounds store writes made after the ticket's own deadline may have passed.
	storeTimeout = 2 * time.Second
)

// Exchanger trades a refresh token for a new credential pair at the backend.
// The backend rotates refresh tokens: the one passed in is spent either way.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (token.Credentials, error)
}

// Observer is told how each refresh attempt went. Callbacks run
// on the ticket's goroutine before waiters are released and must not block
// on a refresh themselves. epoch is the session epoch the ticket belongs to,
// as returned by Invalidate.
type Observer interface {
	RefreshStarted(epoch uint64)
	RefreshSucceeded(epoch uint64, creds token.Credentials)
	RefreshFailed(epoch uint64, err error)
}

// Coordinator turns any number of concurrent refresh requests into a single
// call to the refresh endpoint. All callers that arrive while a ticket is in
// flight share its result, success or failure.
type Coordinator struct {
	store     token.Store
	exchanger Exchanger
	observer  Observer
	timeout   time.Duration
	logger    zerolog.Logger

	group singleflight.Group

	lock  sync.Mutex
	epoch uint64

	exchanges atomic.Int64
}

type Option func(*Coordinator)

// WithTimeout bounds the refresh network call. A timeout is a refresh failure.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a coordinator that persists rotated pairs to store
func NewCoordinator(store token.Store, exchanger Exchanger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		exchanger: exchanger,
		timeout:   defaultTimeout,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh returns a credential pair newer than current. It joins the ticket in
// flight if there is one, otherwise it opens one. Failures satisfy
// errors.Is(err, ErrSessionExpired) and leave the store empty.
//
// If ctx ends first the caller stops waiting; the ticket itself runs on under
// its own timeout so the other waiters still get its result.
func (c *Coordinator) Refresh(ctx context.Context, current token.Credentials) (token.Credentials, error) {
	c.lock.Lock()
	epoch := c.epoch
	c.lock.Unlock()

	ch := c.group.DoChan(ticketKey(epoch), func() (interface{}, error) {
		return c.runTicket(epoch, current)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return token.Credentials{}, res.Err
		}
		return res.Val.(token.Credentials), nil
	case <-ctx.Done():
		return token.Credentials{}, ctx.Err()
	}
}

// Invalidate ends the current session epoch. A ticket still in flight from
// the old epoch discards its result instead of writing it to the store, and
// the next Refresh opens a new ticket. It returns the epoch that begins.
func (c *Coordinator) Invalidate() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.group.Forget(ticketKey(c.epoch))
	c.epoch++
	return c.epoch
}

// Exchanges returns how many refresh calls reached the backend
func (c *Coordinator) Exchanges() int64 {
	return c.exchanges.Load()
}

func ticketKey(epoch uint64) string {
	return "refresh/" + strconv.FormatUint(epoch, 10)
}

func (c *Coordinator) runTicket(epoch uint64, current token.Credentials) (token.Credentials, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stored, err := c.store.Get(ctx)
	if apperrors.Is(err, token.ErrNoCredentials) {
		return token.Credentials{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if err != nil {
		return token.Credentials{}, c.fail(ctx, epoch, apperrors.Wrapf(err, "read stored credentials"))
	}

	// An earlier ticket already rotated the pair the caller was using.
	if current.AccessToken != "" && stored.AccessToken != current.AccessToken {
		c.logger.Debug().Msg("refresh skipped, stored credentials are newer")
		return stored, nil
	}

	if c.observer != nil {
		c.observer.RefreshStarted(epoch)
	}

	c.exchanges.Add(1)
	fresh, err := c.exchanger.Exchange(ctx, stored.RefreshToken)
	if err == nil && !fresh.Valid() {
		err = token.ErrIncompleteCredentials
	}
	if err != nil {
		return token.Credentials{}, c.fail(ctx, epoch, err)
	}
	if fresh.IssuedAt.IsZero() {
		fresh.IssuedAt = NowTimeFunc()
	}

	c.lock.Lock()
	if c.epoch != epoch {
		c.lock.Unlock()
		c.logger.Debug().Msg("refresh result discarded, session ended while in flight")
		return token.Credentials{}, fmt.Errorf("%w: session ended during refresh", ErrSessionExpired)
	}
	setCtx, setCancel := storeContext(ctx)
	err = c.store.Set(setCtx, fresh)
	setCancel()
	c.lock.Unlock()
	if err != nil {
		return token.Credentials{}, c.fail(ctx, epoch, apperrors.Wrapf(err, "store rotated credentials"))
	}

	c.logger.Info().Int64("expires_in", fresh.ExpiresIn).Msg("session refreshed")
	if c.observer != nil {
		c.observer.RefreshSucceeded(epoch, fresh)
	}
	return fresh, nil
}

// fail clears the store, unless the session was already replaced, and
// returns the error every waiter of the ticket receives.
func (c *Coordinator) fail(ctx context.Context, epoch uint64, cause error) error {
	err := fmt.Errorf("%w: %w", ErrSessionExpired, cause)

	c.lock.Lock()
	current := c.epoch == epoch
	if current {
		clearCtx, clearCancel := storeContext(ctx)
		clearErr := c.store.Clear(clearCtx)
		clearCancel()
		if clearErr != nil {
			log.Err(clearErr).Msg("Failed to clear credentials after refresh failure")
		}
	}
	c.lock.Unlock()

	if !current {
		return err
	}

	c.logger.Warn().Err(cause).Msg("session refresh failed")
	if c.observer != nil {
		c.observer.RefreshFailed(epoch, err)
	}
	return err
}

// storeContext keeps ctx's values but not its deadline, so a ticket that timed
// out can still clear or write the store.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}
