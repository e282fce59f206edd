// Package clocksync estimates the offset between a local monotonic clock and
// the server clock with a burst of time-echo round trips.
package clocksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSyncDivergence means every attempt was too noisy to trust.
	ErrSyncDivergence = errors.New("clock sync did not converge")
	// ErrTooFewMeasurements rejects configurations that cannot produce a trimmed sample.
	ErrTooFewMeasurements = errors.New("too few measurements for clock sync")
)

// Echo is the server's reply to a ping, in server milliseconds.
type Echo struct {
	Offset float64 `json:"offset"`
	Time   float64 `json:"time"`
}

// Transport carries pings to the time-echo endpoint.
type Transport interface {
	// Ping sends the local send time and waits for the matching echo.
	Ping(ctx context.Context, sendTime float64) (Echo, error)
	Close() error
}

// Dialer opens a fresh transport.
type Dialer func(ctx context.Context) (Transport, error)

// Config tunes the estimator
type Config struct {
	Measurements int     // pings per attempt
	Trim         int     // samples dropped at each end before the dispersion check
	MaxVariance  float64 // ms^2
	MaxAttempts  int     // 0 retries forever
}

// DefaultConfig returns the default estimator configuration
func DefaultConfig() Config {
	return Config{
		Measurements: 10,
		Trim:         3,
		MaxVariance:  1000,
		MaxAttempts:  10,
	}
}

// Validate checks that an attempt can produce a trimmed sample.
func (c Config) Validate() error {
	if c.Measurements < 2 || c.Trim < 0 || c.Measurements <= 2*c.Trim {
		return fmt.Errorf("%w: %d measurements with trim %d", ErrTooFewMeasurements, c.Measurements, c.Trim)
	}
	return nil
}

// Estimator produces a server clock offset for a local monotonic clock.
// Local time is milliseconds elapsed since the estimator was created, so
// wall clock jumps do not affect it; server time = Now() + offset.
type Estimator struct {
	dial   Dialer
	clock  clockwork.Clock
	epoch  time.Time
	config Config
}

// NewEstimator creates an estimator
func NewEstimator(dial Dialer, clock clockwork.Clock, config Config) *Estimator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Estimator{
		dial:   dial,
		clock:  clock,
		epoch:  clock.Now(),
		config: config,
	}
}

// Now returns the local monotonic clock in milliseconds.
func (e *Estimator) Now() float64 {
	return float64(e.clock.Since(e.epoch)) / float64(time.Millisecond)
}

// Synchronize measures until a burst of samples is tight enough, then returns
// the median offset. A burst whose trimmed variance exceeds MaxVariance, or
// that hits a transport error, is discarded and measured again up to
// MaxAttempts times. Failing to open the transport is returned immediately.
func (e *Estimator) Synchronize(ctx context.Context) (float64, error) {
	if err := e.config.Validate(); err != nil {
		return 0, err
	}

	transport, err := e.dial(ctx)
	if err != nil {
		return 0, fmt.Errorf("open time sync channel: %w", err)
	}
	defer func() {
		if transport != nil {
			_ = transport.Close()
		}
	}()

	for attempt := 1; e.config.MaxAttempts <= 0 || attempt <= e.config.MaxAttempts; attempt++ {
		samples, err := e.measure(ctx, transport)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("time sync attempt failed, reconnecting")
			_ = transport.Close()
			transport = nil
			next, err := e.dial(ctx)
			if err != nil {
				return 0, fmt.Errorf("reopen time sync channel: %w", err)
			}
			transport = next
			continue
		}

		dispersion := TrimmedVariance(samples, e.config.Trim)
		if dispersion > e.config.MaxVariance {
			log.Debug().
				Float64("variance", dispersion).
				Int("attempt", attempt).
				Msg("time sync too noisy, re-syncing")
			continue
		}

		offset := Median(samples)
		log.Debug().
			Float64("offset_ms", offset).
			Float64("variance", dispersion).
			Int("attempt", attempt).
			Msg("clock synchronized")
		return offset, nil
	}

	return 0, fmt.Errorf("%w after %d attempts", ErrSyncDivergence, e.config.MaxAttempts)
}

// measure runs one burst of pings. Each sample averages the server-side and
// client-side one-way offsets so symmetric latency cancels out.
func (e *Estimator) measure(ctx context.Context, transport Transport) ([]float64, error) {
	samples := make([]float64, 0, e.config.Measurements)
	for i := 0; i < e.config.Measurements; i++ {
		sent := e.Now()
		echo, err := transport.Ping(ctx, sent)
		if err != nil {
			return nil, fmt.Errorf("ping %d: %w", i+1, err)
		}
		received := e.Now()

		clientOffset := echo.Time - received
		samples = append(samples, (echo.Offset+clientOffset)/2)
	}
	return samples, nil
}
