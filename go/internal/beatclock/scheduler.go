package beatclock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// LocalClock reads the local monotonic clock in milliseconds.
// *clocksync.Estimator satisfies it.
type LocalClock interface {
	Now() float64
}

// SchedulerConfig tunes the lookahead scheduler
type SchedulerConfig struct {
	Interval  time.Duration // polling period
	Lookahead time.Duration // how far ahead ticks are precomputed
}

// DefaultSchedulerConfig returns the default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:  25 * time.Millisecond,
		Lookahead: 300 * time.Millisecond,
	}
}

// Scheduler polls on a short interval and hands out ticks a little ahead of
// time with their exact timestamps, so playback does not inherit the jitter
// of the polling loop. Each tick is emitted once even when the timing changes
// between polls.
type Scheduler struct {
	clock  clockwork.Clock
	local  LocalClock
	config SchedulerConfig

	mu        sync.Mutex
	timing    Timing
	hasTiming bool
	horizon   float64 // local ms up to which ticks were emitted
	started   bool
}

// NewScheduler creates a tick scheduler
func NewScheduler(clock clockwork.Clock, local LocalClock, config SchedulerConfig) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{clock: clock, local: local, config: config}
}

// SetTiming replaces the timing used for ticks after the current horizon.
func (s *Scheduler) SetTiming(t Timing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timing = t
	s.hasTiming = true
}

// ClearTiming stops tick generation until timing is set again.
func (s *Scheduler) ClearTiming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasTiming = false
}

// Current returns the beat sounding now, for a visual indicator.
func (s *Scheduler) Current() (Beat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasTiming {
		return Beat{}, false
	}
	return s.timing.Beat(s.local.Now()), true
}

// Poll returns the ticks that became due for scheduling since the last poll.
func (s *Scheduler) Poll() []Tick {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.local.Now()
	to := now + float64(s.config.Lookahead)/float64(time.Millisecond)

	from := now
	if s.started && s.horizon > from {
		from = s.horizon
	}
	if to <= from {
		return nil
	}
	s.horizon = to
	s.started = true

	if !s.hasTiming {
		return nil
	}
	return s.timing.TicksBetween(from, to)
}

// Run polls until ctx is done and passes every tick to emit.
func (s *Scheduler) Run(ctx context.Context, emit func(Tick)) {
	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Debug().
		Dur("interval", s.config.Interval).
		Dur("lookahead", s.config.Lookahead).
		Msg("tick scheduler started")

	for _, tick := range s.Poll() {
		emit(tick)
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("tick scheduler stopped")
			return
		case <-ticker.Chan():
			for _, tick := range s.Poll() {
				emit(tick)
			}
		}
	}
}
