package client

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/beatclock"
	"github.com/mcdev12/metronome/go/internal/models"
)

// Follow feeds every pushed view into the scheduler until the session ends
// or ctx is done. onView, when set, sees each view after the timing update.
// It returns the last view received.
func Follow(ctx context.Context, session *Session, scheduler *beatclock.Scheduler, offset float64, onView func(*models.RoomView)) *models.RoomView {
	var last *models.RoomView
	for {
		select {
		case <-ctx.Done():
			return last
		case view, ok := <-session.Views():
			if !ok {
				return last
			}
			last = view

			if timing, ok := beatclock.TimingFromView(view, offset); ok {
				scheduler.SetTiming(timing)
			} else {
				log.Info().Str("slug", session.Slug).Msg("room settings hidden, pausing ticks")
				scheduler.ClearTiming()
			}
			if onView != nil {
				onView(view)
			}
		}
	}
}
