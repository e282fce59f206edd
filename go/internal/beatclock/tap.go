package beatclock

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/metronome/go/internal/clocksync"
	"github.com/mcdev12/metronome/go/internal/models"
)

// DefaultTapIdle is how long after the last tap a new tap starts a fresh run.
const DefaultTapIdle = 3 * time.Second

// TapTempo derives a tempo from a run of taps.
type TapTempo struct {
	clock clockwork.Clock
	idle  time.Duration

	mu      sync.Mutex
	taps    []float64
	lastTap time.Time
}

// NewTapTempo creates a tap tempo tracker
func NewTapTempo(clock clockwork.Clock, idle time.Duration) *TapTempo {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if idle <= 0 {
		idle = DefaultTapIdle
	}
	return &TapTempo{clock: clock, idle: idle}
}

// Tap records a tap at serverTime (ms) and returns the update it implies:
// the first tap of each measure moves the start time to the tap, and from
// the second tap on the tempo is the median tap interval rounded to 0.1 bpm.
// Returns nil when there is nothing to change.
func (t *TapTempo) Tap(serverTime float64, measure models.BeatsPerMeasure) *models.RoomUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if len(t.taps) > 0 && now.Sub(t.lastTap) >= t.idle {
		t.taps = t.taps[:0]
	}
	t.lastTap = now
	t.taps = append(t.taps, serverTime)

	var update models.RoomUpdate
	// no emphasis has no downbeat to line up with
	if !measure.IsNoEmphasis() && (len(t.taps)-1)%measure.Modulus() == 0 {
		start := serverTime
		update.StartTime = &start
	}

	if len(t.taps) >= 2 {
		intervals := make([]float64, 0, len(t.taps)-1)
		for i := 1; i < len(t.taps); i++ {
			intervals = append(intervals, t.taps[i]-t.taps[i-1])
		}
		if perBeat := clocksync.Median(intervals); perBeat > 0 {
			bpm := math.Round(msPerMinute/perBeat*10) / 10
			update.BeatsPerMinute = &bpm
		}
	}

	if update.IsEmpty() {
		return nil
	}
	return &update
}

// Taps returns the number of taps in the current run.
func (t *TapTempo) Taps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.taps) > 0 && t.clock.Since(t.lastTap) >= t.idle {
		return 0
	}
	return len(t.taps)
}
