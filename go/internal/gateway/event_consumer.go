package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/fanout"
	"github.com/mcdev12/metronome/go/internal/rooms"
)

// EventConsumer turns fan-out updates into pushes to this instance's sessions
type EventConsumer struct {
	connectionManager *ConnectionManager
	rooms             Rooms
	bus               fanout.Bus
	sub               fanout.Subscription
}

// NewEventConsumer creates a new fan-out consumer
func NewEventConsumer(cm *ConnectionManager, rooms Rooms, bus fanout.Bus) *EventConsumer {
	return &EventConsumer{
		connectionManager: cm,
		rooms:             rooms,
		bus:               bus,
	}
}

// Start subscribes to the fan-out channel. Updates are delivered until ctx is done or Stop is called.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().Msg("starting fan-out event consumer")

	sub, err := ec.bus.Subscribe(ctx, ec.processUpdate)
	if err != nil {
		return fmt.Errorf("subscribe to room updates: %w", err)
	}
	ec.sub = sub
	return nil
}

// processUpdate re-reads the authoritative room and queues views for local sessions.
func (ec *EventConsumer) processUpdate(ctx context.Context, update fanout.Update) {
	if len(ec.connectionManager.Connections(update.Slug)) == 0 {
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	room, err := ec.rooms.GetRoom(readCtx, update.Slug)
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		log.Warn().Str("slug", update.Slug).Msg("fan-out update for unknown room")
		return
	case err != nil && update.Room != nil:
		log.Warn().Err(err).Str("slug", update.Slug).Msg("store read failed, using fan-out payload")
		room = update.Room
	case err != nil:
		log.Error().Err(err).Str("slug", update.Slug).Msg("failed to load room for fan-out update")
		return
	}

	log.Debug().
		Str("slug", update.Slug).
		Str("origin", update.Origin).
		Dur("latency", time.Since(update.PublishedAt)).
		Msg("processing room update")

	ec.connectionManager.BroadcastRoom(room)
}

// Stop ends the subscription
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	if ec.sub != nil {
		return ec.sub.Unsubscribe()
	}
	return nil
}
