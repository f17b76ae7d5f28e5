package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) Invalidate(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), keys...))
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// waitFor waits until n invalidations ran; they complete off the timer loop.
func (r *recorder) waitFor(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count() == n }, 2*time.Second, time.Millisecond)
}

func (r *recorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func newTestScheduler(t *testing.T) (*Scheduler, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	sched := New(rec, WithClock(clock), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(sched.StopAll)
	return sched, clock, rec
}

func waitArmed(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

// fire advances past the pending timer and waits until the loop re-arms.
func fire(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	waitArmed(t, clock)
	clock.Advance(d)
	waitArmed(t, clock)
}

func TestSchedulerFiresAtBaseInterval(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sub := sched.Start([]string{"conges:mes-conges"}, 60*time.Second, true)

	waitArmed(t, clock)
	clock.Advance(59 * time.Second)
	assert.Equal(t, 0, rec.count())

	clock.Advance(time.Second)
	waitArmed(t, clock)
	rec.waitFor(t, 1)
	assert.Equal(t, []string{"conges:mes-conges"}, rec.last())

	state := sub.State()
	assert.Equal(t, 60*time.Second, state.CurrentInterval)
	assert.Equal(t, 1, state.NoChangeStreak)
	assert.Equal(t, 300*time.Second, state.MaxInterval)
}

func TestSchedulerBacksOffAfterThirdFire(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sub := sched.Start([]string{"employes"}, 60*time.Second, true)

	for i := 0; i < 3; i++ {
		fire(t, clock, 60*time.Second)
	}
	rec.waitFor(t, 3)
	assert.Equal(t, 90*time.Second, sub.State().CurrentInterval)
	assert.Equal(t, 3, sub.State().NoChangeStreak)

	clock.Advance(89 * time.Second)
	assert.Equal(t, 3, rec.count())

	clock.Advance(time.Second)
	waitArmed(t, clock)
	rec.waitFor(t, 4)
	assert.Equal(t, 135*time.Second, sub.State().CurrentInterval)
}

func TestSchedulerIntervalNeverExceedsMax(t *testing.T) {
	sched, clock, _ := newTestScheduler(t)
	sub := sched.Start([]string{"notifications"}, 60*time.Second, true)

	for i := 0; i < 12; i++ {
		fire(t, clock, sub.State().CurrentInterval)
		assert.LessOrEqual(t, sub.State().CurrentInterval, 300*time.Second)
	}
	assert.Equal(t, 300*time.Second, sub.State().CurrentInterval)
}

func TestSchedulerSmallBaseCapsAtFiveTimesBase(t *testing.T) {
	sched, clock, _ := newTestScheduler(t)
	sub := sched.Start([]string{"k"}, 10*time.Second, true)
	assert.Equal(t, 50*time.Second, sub.State().MaxInterval)

	for i := 0; i < 10; i++ {
		fire(t, clock, sub.State().CurrentInterval)
	}
	assert.Equal(t, 50*time.Second, sub.State().CurrentInterval)
}

func TestSchedulerBaseAboveCeilingDoesNotShrink(t *testing.T) {
	sched, clock, _ := newTestScheduler(t)
	sub := sched.Start([]string{"k"}, 10*time.Minute, true)
	assert.Equal(t, 5*time.Minute, sub.State().MaxInterval)

	for i := 0; i < 4; i++ {
		fire(t, clock, 10*time.Minute)
	}
	assert.Equal(t, 10*time.Minute, sub.State().CurrentInterval)
}

func TestSchedulerDefaultsNonPositiveBase(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	sub := sched.Start([]string{"k"}, 0, false)
	assert.Equal(t, DefaultBaseInterval, sub.State().CurrentInterval)
}

func TestStopPreventsFurtherInvalidation(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sub := sched.Start([]string{"k"}, 60*time.Second, true)
	fire(t, clock, 60*time.Second)
	rec.waitFor(t, 1)

	sub.Stop()
	sub.Stop()
	clock.Advance(time.Hour)
	assert.Equal(t, 1, rec.count())
	assert.False(t, sub.Enabled())
	assert.Equal(t, 0, sched.Active())
}

func TestDisabledSubscriptionNeverFires(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sched.Start([]string{"k"}, time.Second, false)
	clock.Advance(time.Hour)
	assert.Equal(t, 0, rec.count())
}

func TestReconfigureDisableStopsFiring(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sub := sched.Start([]string{"k"}, 60*time.Second, true)
	fire(t, clock, 60*time.Second)

	sub.Reconfigure([]string{"k"}, 60*time.Second, false)
	clock.Advance(time.Hour)
	assert.Equal(t, 1, rec.count())
	assert.False(t, sub.Enabled())
	assert.Equal(t, 1, sub.State().NoChangeStreak)
}

func TestReconfigureResetsStreakAndInterval(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sub := sched.Start([]string{"a"}, 60*time.Second, true)
	for i := 0; i < 4; i++ {
		fire(t, clock, sub.State().CurrentInterval)
	}
	require.Greater(t, sub.State().CurrentInterval, 60*time.Second)

	sub.Reconfigure([]string{"a", "b"}, 30*time.Second, true)
	state := sub.State()
	assert.Equal(t, 30*time.Second, state.CurrentInterval)
	assert.Equal(t, 0, state.NoChangeStreak)
	assert.Equal(t, 150*time.Second, state.MaxInterval)

	fire(t, clock, 30*time.Second)
	rec.waitFor(t, 5)
	assert.Equal(t, []string{"a", "b"}, rec.last())
}

func TestReconfigureWithSameParametersKeepsState(t *testing.T) {
	sched, clock, _ := newTestScheduler(t)
	sub := sched.Start([]string{"a"}, 60*time.Second, true)
	fire(t, clock, 60*time.Second)

	sub.Reconfigure([]string{"a"}, 60*time.Second, true)
	assert.Equal(t, 1, sub.State().NoChangeStreak)
}

func TestReenableRestartsFromBase(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sub := sched.Start([]string{"a"}, 60*time.Second, true)
	fire(t, clock, 60*time.Second)
	sub.Reconfigure([]string{"a"}, 60*time.Second, false)

	sub.Reconfigure([]string{"a"}, 60*time.Second, true)
	assert.Equal(t, 0, sub.State().NoChangeStreak)
	fire(t, clock, 60*time.Second)
	rec.waitFor(t, 2)
}

func TestStopAllStopsEverySubscription(t *testing.T) {
	sched, clock, rec := newTestScheduler(t)
	sched.Start([]string{"a"}, time.Minute, true)
	sched.Start([]string{"b"}, time.Minute, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	sched.StopAll()
	clock.Advance(time.Hour)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 0, sched.Active())
}

func TestInvalidatorFunc(t *testing.T) {
	var got []string
	inv := InvalidatorFunc(func(_ context.Context, keys ...string) error {
		got = keys
		return nil
	})
	require.NoError(t, inv.Invalidate(context.Background(), "x", "y"))
	assert.Equal(t, []string{"x", "y"}, got)
}

type blockingInvalidator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingInvalidator) Invalidate(ctx context.Context, _ ...string) error {
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestSlowInvalidationDoesNotDelayNextTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inv := &blockingInvalidator{started: make(chan struct{}, 4), release: make(chan struct{})}
	sched := New(inv, WithClock(clock), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	sub := sched.Start([]string{"k"}, 60*time.Second, true)

	received := func() {
		t.Helper()
		select {
		case <-inv.started:
		case <-time.After(2 * time.Second):
			t.Fatal("invalidation not started")
		}
	}

	fire(t, clock, 60*time.Second)
	received()
	fire(t, clock, 60*time.Second)
	received()
	assert.Equal(t, 2, sub.State().NoChangeStreak)

	close(inv.release)
	sub.Stop()
	clock.Advance(time.Hour)
	assert.Empty(t, inv.started)
}
