package renewal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"github.com/jrsteele09/go-school-session/token"
)

const DefaultMargin = 60 * time.Second

// Refresher is satisfied by refresh.Coordinator. Proactive renewals join the
// same ticket as reactive ones.
type Refresher interface {
	Refresh(ctx context.Context, current token.Credentials) (token.Credentials, error)
}

// Scheduler keeps at most one renewal timer armed per session. The timer
// fires a margin before the access token expires so requests never see a
// 401 in normal operation.
type Scheduler struct {
	clock     clock.WithDelayedExecution
	margin    time.Duration
	refresher Refresher
	onFailure func(error)
	logger    zerolog.Logger

	lock  sync.Mutex
	timer clock.Timer
	gen   uint64
}

type Option func(*Scheduler)

func WithClock(c clock.WithDelayedExecution) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithMargin sets how long before expiry the renewal fires
func WithMargin(margin time.Duration) Option {
	return func(s *Scheduler) {
		if margin > 0 {
			s.margin = margin
		}
	}
}

// WithOnFailure is called when a proactive renewal fails. The session is over
// at that point; the scheduler does not try again.
func WithOnFailure(onFailure func(error)) Option {
	return func(s *Scheduler) {
		s.onFailure = onFailure
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func New(refresher Refresher, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:     clock.RealClock{},
		margin:    DefaultMargin,
		refresher: refresher,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns when to renew a token with the given lifetime: margin before
// expiry, or halfway through when the lifetime is not longer than the margin.
func Delay(lifetime, margin time.Duration) time.Duration {
	if lifetime > margin {
		return lifetime - margin
	}
	if lifetime <= 0 {
		return 0
	}
	return lifetime / 2
}

// Schedule replaces any pending renewal with one for creds, whose access
// token has lifetime left to run. It returns the delay used.
func (s *Scheduler) Schedule(creds token.Credentials, lifetime time.Duration) time.Duration {
	delay := Delay(lifetime, s.margin)

	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopLocked()
	s.gen++
	gen := s.gen
	// The fake clock runs callbacks while holding its own lock.
	s.timer = s.clock.AfterFunc(delay, func() { go s.fire(gen, creds) })

	s.logger.Debug().Dur("delay", delay).Msg("renewal scheduled")
	return delay
}

// Cancel stops the pending renewal, if any. A renewal that has already fired
// for a cancelled schedule neither reports failure nor re-arms.
func (s *Scheduler) Cancel() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopLocked()
	s.gen++
}

// Pending returns the number of armed timers, 0 or 1
func (s *Scheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer == nil {
		return 0
	}
	return 1
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) current(gen uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.gen == gen
}

func (s *Scheduler) fire(gen uint64, creds token.Credentials) {
	s.lock.Lock()
	if s.gen != gen {
		s.lock.Unlock()
		return
	}
	s.timer = nil
	s.lock.Unlock()

	s.logger.Info().Msg("renewing session before expiry")
	fresh, err := s.refresher.Refresh(context.Background(), creds)
	if err != nil {
		if !s.current(gen) {
			return
		}
		log.Err(err).Msg("Proactive session renewal failed")
		if s.onFailure != nil {
			s.onFailure(err)
		}
		return
	}

	// A successful refresh normally re-arms through the session observer,
	// which bumps the generation. Re-arm here only if nothing did.
	s.lock.Lock()
	rearm := s.gen == gen && s.timer == nil
	s.lock.Unlock()
	if rearm && fresh.Lifetime() > 0 {
		s.Schedule(fresh, fresh.Lifetime())
	}
}
