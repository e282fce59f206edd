package models

import "time"

// Millis converts t to fractional milliseconds since the Unix epoch,
// the time unit used for every timestamp on the wire.
func Millis(t time.Time) float64 {
	sub := t.Nanosecond() % int(time.Millisecond)
	return float64(t.UnixMilli()) + float64(sub)/float64(time.Millisecond)
}
