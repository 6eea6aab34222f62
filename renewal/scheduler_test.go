package renewal_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-school-session/renewal"
	"github.com/jrsteele09/go-school-session/token"
	"github.com/jrsteele09/go-school-session/token/storetest"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type fakeRefresher struct {
	next    token.Credentials
	err     error
	release chan struct{}

	lock sync.Mutex
	seen []token.Credentials
}

func (f *fakeRefresher) Refresh(_ context.Context, current token.Credentials) (token.Credentials, error) {
	f.lock.Lock()
	f.seen = append(f.seen, current)
	f.lock.Unlock()

	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return token.Credentials{}, f.err
	}
	return f.next, nil
}

func (f *fakeRefresher) calls() []token.Credentials {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]token.Credentials(nil), f.seen...)
}

func newScheduler(refresher *fakeRefresher, opts ...renewal.Option) (*renewal.Scheduler, *testingclock.FakeClock) {
	fakeClock := testingclock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	opts = append([]renewal.Option{renewal.WithClock(fakeClock)}, opts...)
	return renewal.New(refresher, opts...), fakeClock
}

func TestDelay(t *testing.T) {
	tests := []struct {
		name     string
		lifetime time.Duration
		margin   time.Duration
		want     time.Duration
	}{
		{"hour token", time.Hour, time.Minute, 59 * time.Minute},
		{"short token", 40 * time.Second, time.Minute, 20 * time.Second},
		{"lifetime equals margin", time.Minute, time.Minute, 30 * time.Second},
		{"already expired", -time.Second, time.Minute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, renewal.Delay(tt.lifetime, tt.margin))
		})
	}
}

func TestFiresMarginBeforeExpiry(t *testing.T) {
	refresher := &fakeRefresher{next: storetest.Pair(2)}
	s, fakeClock := newScheduler(refresher)

	delay := s.Schedule(storetest.Pair(1), time.Hour)
	require.Equal(t, 59*time.Minute, delay)
	require.Equal(t, 1, s.Pending())

	fakeClock.Step(59*time.Minute - time.Second)
	require.Empty(t, refresher.calls())
	require.Equal(t, 1, s.Pending())

	fakeClock.Step(time.Second)
	require.Eventually(t, func() bool { return len(refresher.calls()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "access-1", refresher.calls()[0].AccessToken)

	// Nothing else re-armed, so the scheduler does it from the new pair.
	require.Eventually(t, func() bool { return s.Pending() == 1 }, time.Second, time.Millisecond)
}

func TestScheduleReplacesPendingTimer(t *testing.T) {
	refresher := &fakeRefresher{next: storetest.Pair(3)}
	s, fakeClock := newScheduler(refresher)

	s.Schedule(storetest.Pair(1), time.Hour)
	s.Schedule(storetest.Pair(2), 30*time.Minute)
	require.Equal(t, 1, s.Pending())

	fakeClock.Step(time.Hour)
	require.Eventually(t, func() bool { return s.Pending() == 1 && len(refresher.calls()) == 1 }, time.Second, time.Millisecond)

	calls := refresher.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "access-2", calls[0].AccessToken)
}

func TestCancel(t *testing.T) {
	refresher := &fakeRefresher{next: storetest.Pair(2)}
	s, fakeClock := newScheduler(refresher)

	s.Schedule(storetest.Pair(1), time.Hour)
	s.Cancel()
	s.Cancel()
	require.Zero(t, s.Pending())
	require.False(t, fakeClock.HasWaiters())

	fakeClock.Step(2 * time.Hour)
	require.Empty(t, refresher.calls())
}

func TestFailureReportsAndStops(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("session expired")}
	var failures atomic.Int32
	s, fakeClock := newScheduler(refresher, renewal.WithOnFailure(func(error) { failures.Add(1) }))

	s.Schedule(storetest.Pair(1), 2*time.Minute)
	fakeClock.Step(time.Minute)

	require.Eventually(t, func() bool { return failures.Load() == 1 }, time.Second, time.Millisecond)
	require.Zero(t, s.Pending())
	require.False(t, fakeClock.HasWaiters())
}

func TestCancelledRenewalIsIgnored(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("session expired"), release: make(chan struct{})}
	var failures atomic.Int32
	s, fakeClock := newScheduler(refresher, renewal.WithOnFailure(func(error) { failures.Add(1) }))

	s.Schedule(storetest.Pair(1), time.Hour)
	fakeClock.Step(time.Hour)
	require.Eventually(t, func() bool { return len(refresher.calls()) == 1 }, time.Second, time.Millisecond)

	// Logout while the renewal is in flight.
	s.Cancel()
	close(refresher.release)

	require.Never(t, func() bool { return failures.Load() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
	require.Zero(t, s.Pending())
}

func TestCustomMargin(t *testing.T) {
	refresher := &fakeRefresher{next: storetest.Pair(2)}
	s, _ := newScheduler(refresher, renewal.WithMargin(5*time.Minute))

	require.Equal(t, 55*time.Minute, s.Schedule(storetest.Pair(1), time.Hour))
	s.Cancel()
}
