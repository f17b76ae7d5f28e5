// Package poller schedules periodic cache invalidation for live views, backing
// off while successive ticks bring no change.
package poller

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultBaseInterval applies when a caller passes a non-positive base interval.
	DefaultBaseInterval = 60 * time.Second
	// IntervalCeiling caps the backed-off interval.
	IntervalCeiling = 5 * time.Minute

	backoffFactor    = 1.5
	maxIntervalRatio = 5
	streakThreshold  = 2
)

// Invalidator marks query keys stale so the cache re-fetches them.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, keys ...string) error

// Invalidate calls f.
func (f InvalidatorFunc) Invalidate(ctx context.Context, keys ...string) error {
	return f(ctx, keys...)
}

// State is a snapshot of a subscription's adaptive interval.
type State struct {
	CurrentInterval time.Duration
	NoChangeStreak  int
	MaxInterval     time.Duration
}

func initialState(base time.Duration) State {
	return State{
		CurrentInterval: base,
		MaxInterval:     min(base*maxIntervalRatio, IntervalCeiling),
	}
}

// advance records one fire and returns the interval for the next wait.
func (s *State) advance() time.Duration {
	s.NoChangeStreak++
	if s.NoChangeStreak > streakThreshold {
		next := min(time.Duration(float64(s.CurrentInterval)*backoffFactor), s.MaxInterval)
		// A base above the ceiling keeps its own interval.
		s.CurrentInterval = max(s.CurrentInterval, next)
	}
	return s.CurrentInterval
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock injects the clock driving the timers.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger used for tick traces.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler owns the polling subscriptions of one invalidation target.
type Scheduler struct {
	inv    Invalidator
	clock  clockwork.Clock
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// New constructs a Scheduler invalidating through inv.
func New(inv Invalidator, opts ...Option) *Scheduler {
	s := &Scheduler{
		inv:    inv,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		subs:   make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers a subscription for keys. When enabled it fires every
// CurrentInterval until stopped or disabled.
func (s *Scheduler) Start(keys []string, base time.Duration, enabled bool) *Subscription {
	sub := &Subscription{sched: s}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.mu.Lock()
	sub.configure(keys, base, enabled)
	sub.mu.Unlock()
	return sub
}

// StopAll stops every live subscription.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
}

// Active returns the number of subscriptions not yet stopped.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Scheduler) forget(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Subscription is one polling registration. Its methods are safe for concurrent use.
type Subscription struct {
	sched *Scheduler

	mu      sync.Mutex
	keys    []string
	base    time.Duration
	enabled bool
	state   State
	gen     uint64
	stopped bool
	loop    *loop
}

type loop struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	// inflight tracks invalidations still running; done closes after them.
	inflight sync.WaitGroup
}

// State returns a snapshot of the adaptive interval.
func (sub *Subscription) State() State {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.state
}

// Keys returns the keys the subscription invalidates.
func (sub *Subscription) Keys() []string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return slices.Clone(sub.keys)
}

// Enabled reports whether the subscription is currently firing.
func (sub *Subscription) Enabled() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.enabled && !sub.stopped
}

// Reconfigure applies new parameters. A change of keys or base interval, or a
// re-enable, restarts the timer from the base interval with a zero streak.
// Disabling stops firing; the previous state is kept.
func (sub *Subscription) Reconfigure(keys []string, base time.Duration, enabled bool) {
	sub.mu.Lock()
	if sub.stopped {
		sub.mu.Unlock()
		return
	}
	if base <= 0 {
		base = DefaultBaseInterval
	}
	changed := base != sub.base || !slices.Equal(keys, sub.keys)
	if !changed && enabled == sub.enabled {
		sub.mu.Unlock()
		return
	}
	prev := sub.halt()
	if changed || enabled {
		sub.configure(keys, base, enabled)
	} else {
		sub.enabled = false
	}
	sub.mu.Unlock()
	prev.wait()
}

// Stop cancels the pending timer. It is idempotent; once it returns no further
// invalidation is issued.
func (sub *Subscription) Stop() {
	sub.mu.Lock()
	if sub.stopped {
		sub.mu.Unlock()
		return
	}
	sub.stopped = true
	sub.enabled = false
	prev := sub.halt()
	sub.mu.Unlock()
	prev.wait()
	sub.sched.forget(sub)
}

// configure resets the state and arms a new loop when enabled. Caller holds mu.
func (sub *Subscription) configure(keys []string, base time.Duration, enabled bool) {
	if base <= 0 {
		base = DefaultBaseInterval
	}
	sub.keys = slices.Clone(keys)
	sub.base = base
	sub.enabled = enabled
	sub.state = initialState(base)
	if !enabled {
		return
	}
	sub.gen++
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{gen: sub.gen, cancel: cancel, done: make(chan struct{})}
	sub.loop = l
	timer := sub.sched.clock.NewTimer(base)
	go sub.run(ctx, l, timer)
}

// halt detaches the running loop. Caller holds mu and must wait on the result
// after releasing it.
func (sub *Subscription) halt() *loop {
	prev := sub.loop
	sub.loop = nil
	sub.gen++
	if prev != nil {
		prev.cancel()
	}
	return prev
}

func (l *loop) wait() {
	if l == nil {
		return
	}
	<-l.done
}

func (sub *Subscription) run(ctx context.Context, l *loop, timer clockwork.Timer) {
	defer close(l.done)
	defer l.inflight.Wait()
	defer timer.Stop()
	logger := sub.sched.logger

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
		}

		sub.mu.Lock()
		if sub.gen != l.gen {
			sub.mu.Unlock()
			return
		}
		keys := slices.Clone(sub.keys)
		next := sub.state.advance()
		streak := sub.state.NoChangeStreak
		sub.mu.Unlock()

		// The next tick is armed before invalidating so a slow cache does not
		// stretch the interval.
		timer.Reset(next)
		logger.Debug("poller tick", slog.Any("keys", keys), slog.Int("streak", streak), slog.Duration("next", next))

		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			if err := sub.sched.inv.Invalidate(ctx, keys...); err != nil && ctx.Err() == nil {
				logger.Warn("poller invalidate failed", slog.Any("keys", keys), slog.Any("error", err))
			}
		}()
	}
}
