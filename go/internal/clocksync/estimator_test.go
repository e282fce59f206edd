package clocksync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/metronome/go/internal/gateway"
	"github.com/mcdev12/metronome/go/internal/models"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	values := []float64{9, -4, 7, 1, 0}
	assert.Equal(t, 1.0, Median(values))
	assert.Equal(t, []float64{9, -4, 7, 1, 0}, values, "input must not be reordered")
}

func TestVariance(t *testing.T) {
	assert.Equal(t, 0.0, Variance(nil))
	assert.Equal(t, 0.0, Variance([]float64{5, 5, 5}))
	assert.Equal(t, 1.25, Variance([]float64{1, 2, 3, 4}))
}

func TestTrimmedVarianceIgnoresOrder(t *testing.T) {
	a := []float64{-500, 10, 11, 12, 13, 900, 14, 15, 16, 2000}
	b := []float64{16, 2000, 13, -500, 15, 10, 900, 12, 11, 14}

	// ranked 4th..7th are 12..15 in both
	assert.Equal(t, 1.25, TrimmedVariance(a, 3))
	assert.Equal(t, TrimmedVariance(a, 3), TrimmedVariance(b, 3))
	assert.Equal(t, Median(a), Median(b))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{Measurements: 6, Trim: 3}.Validate(), ErrTooFewMeasurements)
	assert.ErrorIs(t, Config{Measurements: 1}.Validate(), ErrTooFewMeasurements)
}

// fakeServer simulates a time-echo peer whose clock runs offset ms ahead of
// the estimator's local clock. Each ping advances the fake clock by the
// scripted one-way latencies.
type fakeServer struct {
	mu     sync.Mutex
	clock  *clockwork.FakeClock
	epoch  time.Time
	offset float64

	latency func(ping int) (up, down time.Duration)
	failAt  map[int]bool
	pings   int
	dials   int
	dialErr error
}

func (s *fakeServer) dial(context.Context) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	return &fakeTransport{server: s}, nil
}

type fakeTransport struct {
	server *fakeServer
}

func (t *fakeTransport) Ping(_ context.Context, sendTime float64) (Echo, error) {
	s := t.server
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pings++
	if s.failAt[s.pings] {
		return Echo{}, errors.New("connection reset")
	}

	up, down := time.Millisecond, time.Millisecond
	if s.latency != nil {
		up, down = s.latency(s.pings)
	}

	s.clock.Advance(up)
	serverNow := float64(s.clock.Since(s.epoch))/float64(time.Millisecond) + s.offset
	s.clock.Advance(down)

	return Echo{Offset: serverNow - sendTime, Time: serverNow}, nil
}

func (t *fakeTransport) Close() error { return nil }

func newFake(offset float64) (*fakeServer, *Estimator) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	server := &fakeServer{clock: clock, epoch: clock.Now(), offset: offset, failAt: map[int]bool{}}
	return server, NewEstimator(server.dial, clock, DefaultConfig())
}

func TestSynchronizeSymmetricLatency(t *testing.T) {
	server, est := newFake(1_700_000_000_000)
	server.latency = func(int) (time.Duration, time.Duration) { return 40 * time.Millisecond, 40 * time.Millisecond }

	offset, err := est.Synchronize(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1_700_000_000_000, offset, 1e-6)
	assert.Equal(t, 10, server.pings)
	assert.Equal(t, 1, server.dials)

	// server time follows the local clock after sync
	server.clock.Advance(2 * time.Second)
	assert.InDelta(t, 1_700_000_000_000+800+2000, est.Now()+offset, 1e-6)
}

func TestSynchronizeAbsorbsAFewOutliers(t *testing.T) {
	server, est := newFake(-250)
	server.latency = func(ping int) (time.Duration, time.Duration) {
		switch ping {
		case 2:
			return 900 * time.Millisecond, time.Millisecond
		case 5:
			return time.Millisecond, 700 * time.Millisecond
		}
		return 10 * time.Millisecond, 10 * time.Millisecond
	}

	offset, err := est.Synchronize(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -250, offset, 1e-6)
	assert.Equal(t, 10, server.pings)
}

func TestSynchronizeRetriesNoisyBurst(t *testing.T) {
	server, est := newFake(42)
	server.latency = func(ping int) (time.Duration, time.Duration) {
		if ping > 10 {
			return 5 * time.Millisecond, 5 * time.Millisecond
		}
		// alternating 200ms asymmetry puts samples at offset +-100
		if ping%2 == 0 {
			return 200 * time.Millisecond, 0
		}
		return 0, 200 * time.Millisecond
	}

	offset, err := est.Synchronize(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 42, offset, 1e-6)
	assert.Equal(t, 20, server.pings)
}

func TestSynchronizeGivesUp(t *testing.T) {
	server, est := newFake(0)
	est.config.MaxAttempts = 3
	server.latency = func(ping int) (time.Duration, time.Duration) {
		if ping%2 == 0 {
			return 200 * time.Millisecond, 0
		}
		return 0, 200 * time.Millisecond
	}

	_, err := est.Synchronize(context.Background())
	assert.ErrorIs(t, err, ErrSyncDivergence)
	assert.Equal(t, 30, server.pings)
}

func TestSynchronizeRedialsAfterTransportError(t *testing.T) {
	server, est := newFake(7)
	server.failAt[3] = true

	offset, err := est.Synchronize(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 7, offset, 1e-6)
	assert.Equal(t, 2, server.dials)
	assert.Equal(t, 13, server.pings)
}

func TestSynchronizeRedialFailure(t *testing.T) {
	server, est := newFake(7)
	server.failAt[3] = true
	dials := 0
	est.dial = func(ctx context.Context) (Transport, error) {
		dials++
		if dials > 1 {
			return nil, errors.New("refused on redial")
		}
		return server.dial(ctx)
	}

	var err error
	require.NotPanics(t, func() {
		_, err = est.Synchronize(context.Background())
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused on redial")
	assert.Equal(t, 2, dials)
	assert.Equal(t, 3, server.pings)
}

func TestSynchronizeDialFailure(t *testing.T) {
	server, est := newFake(0)
	server.dialErr = errors.New("refused")

	_, err := est.Synchronize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.Equal(t, 0, server.pings)
}

func TestSynchronizeOverWebSocket(t *testing.T) {
	mux := http.NewServeMux()
	gateway.NewTimeHandler(gateway.DefaultConnectionConfig(), nil).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	est := NewEstimator(DialWebSocket("ws"+strings.TrimPrefix(server.URL, "http")+"/time", nil), nil, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offset, err := est.Synchronize(ctx)
	require.NoError(t, err)

	// local clock started at zero a moment ago, so the offset is about the server's wall clock
	assert.InDelta(t, models.Millis(time.Now()), est.Now()+offset, 100)
}
