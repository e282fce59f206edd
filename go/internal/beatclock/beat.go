// Package beatclock turns room settings and a synchronized clock offset into
// beat positions and scheduled ticks.
package beatclock

import (
	"math"

	"github.com/mcdev12/metronome/go/internal/models"
)

const msPerMinute = 60000.0

// Beat is a position within the measure. Number starts at 1.
type Beat struct {
	Number int  `json:"number"`
	Accent bool `json:"accent"`
}

// BeatNumber returns the beat sounding at local time nowMs for a room whose
// beat one fell on server time startTimeMs. offsetMs converts local time to
// server time. NoEmphasis measures count in twos without an accent.
func BeatNumber(offsetMs, startTimeMs, bpm float64, measure models.BeatsPerMeasure, nowMs float64) Beat {
	return beatAt(beatIndex(nowMs+offsetMs, startTimeMs, bpm), measure)
}

// beatIndex counts whole beats elapsed since start, negative before it.
func beatIndex(serverMs, startTimeMs, bpm float64) int64 {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return 0
	}
	return int64(math.Floor((serverMs - startTimeMs) * bpm / msPerMinute))
}

func beatAt(index int64, measure models.BeatsPerMeasure) Beat {
	m := int64(measure.Modulus())
	n := int(((index%m)+m)%m) + 1
	return Beat{Number: n, Accent: n == 1 && !measure.IsNoEmphasis()}
}

// Timing is everything needed to place ticks on the local clock.
type Timing struct {
	Offset          float64
	StartTime       float64
	BeatsPerMinute  float64
	BeatsPerMeasure models.BeatsPerMeasure
	Key             models.Key
	Muted           bool
}

// TimingFromView extracts timing from a pushed room view. It returns false
// when the view carries no settings, as for a private room seen anonymously.
func TimingFromView(view *models.RoomView, offset float64) (Timing, bool) {
	if view == nil || view.Settings == nil {
		return Timing{}, false
	}
	return Timing{
		Offset:          offset,
		StartTime:       view.StartTime,
		BeatsPerMinute:  view.BeatsPerMinute,
		BeatsPerMeasure: view.BeatsPerMeasure,
		Key:             view.Key,
		Muted:           view.Muted,
	}, true
}

// Beat returns the beat at local time nowMs.
func (t Timing) Beat(nowMs float64) Beat {
	return BeatNumber(t.Offset, t.StartTime, t.BeatsPerMinute, t.BeatsPerMeasure, nowMs)
}

// Interval is the beat length in milliseconds, 0 when the tempo is unusable.
func (t Timing) Interval() float64 {
	if !(t.BeatsPerMinute > 0) || math.IsInf(t.BeatsPerMinute, 0) {
		return 0
	}
	return msPerMinute / t.BeatsPerMinute
}

// Tick is a beat placed on the local clock.
type Tick struct {
	At        float64 `json:"at"`       // local ms
	ServerAt  float64 `json:"serverAt"` // server ms
	Beat      Beat    `json:"beat"`
	Frequency float64 `json:"frequency"` // Hz
	Muted     bool    `json:"muted"`
}

// TicksBetween returns the ticks whose local time falls in [fromMs, toMs).
func (t Timing) TicksBetween(fromMs, toMs float64) []Tick {
	interval := t.Interval()
	if interval == 0 || !(toMs > fromMs) {
		return nil
	}

	accentHz, normalHz := t.Key.Frequencies()
	first := int64(math.Ceil((fromMs + t.Offset - t.StartTime) / interval))

	var ticks []Tick
	for i := first; ; i++ {
		serverAt := t.StartTime + float64(i)*interval
		at := serverAt - t.Offset
		if at >= toMs {
			break
		}
		if at < fromMs {
			continue
		}
		beat := beatAt(i, t.BeatsPerMeasure)
		freq := normalHz
		if beat.Accent {
			freq = accentHz
		}
		ticks = append(ticks, Tick{At: at, ServerAt: serverAt, Beat: beat, Frequency: freq, Muted: t.Muted})
	}
	return ticks
}
