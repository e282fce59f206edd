// Package fanout carries room change notifications between server instances.
// Every instance publishes on one channel and subscribes to it once; each
// subscriber re-reads the room and pushes fresh views to its own sessions.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

// DefaultChannel is the deployment-wide fan-out channel.
const DefaultChannel = "metronome-updates"

var ErrMalformedUpdate = errors.New("malformed fan-out update")

// Update is one message on the fan-out channel: the full room state keyed by slug.
type Update struct {
	Slug        string       `json:"slug"`
	Origin      string       `json:"origin,omitempty"`
	PublishedAt time.Time    `json:"publishedAt"`
	Room        *models.Room `json:"room,omitempty"`
}

// Handler receives decoded updates. It runs on the subscriber's delivery
// goroutine and must not block on slow consumers.
type Handler func(ctx context.Context, update Update)

// Subscription is an active subscription to the channel.
type Subscription interface {
	Unsubscribe() error
}

// Bus is a publish/subscribe backbone for room updates.
type Bus interface {
	Publish(ctx context.Context, room *models.Room) error
	// Subscribe registers handler and returns once the subscription is live.
	Subscribe(ctx context.Context, handler Handler) (Subscription, error)
	Close() error
}

// envelope stamps outgoing updates with the instance id and publish time.
type envelope struct {
	origin string
	clock  clockwork.Clock
}

func newEnvelope(origin string, clock clockwork.Clock) envelope {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return envelope{origin: origin, clock: clock}
}

func (e envelope) encode(room *models.Room) ([]byte, error) {
	data, err := json.Marshal(Update{
		Slug:        room.Slug,
		Origin:      e.origin,
		PublishedAt: e.clock.Now(),
		Room:        room,
	})
	if err != nil {
		return nil, fmt.Errorf("encode update for %s: %w", room.Slug, err)
	}
	return data, nil
}

// DecodeUpdate parses a fan-out payload. Payloads that are not JSON or carry
// no slug fail with ErrMalformedUpdate.
func DecodeUpdate(data []byte) (Update, error) {
	var update Update
	if err := json.Unmarshal(data, &update); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	if update.Slug == "" {
		return Update{}, fmt.Errorf("%w: missing slug", ErrMalformedUpdate)
	}
	if update.Room != nil && update.Room.Slug != update.Slug {
		return Update{}, fmt.Errorf("%w: slug %q carries room %q", ErrMalformedUpdate, update.Slug, update.Room.Slug)
	}
	return update, nil
}

// dispatch decodes one payload and hands it to handler. Malformed payloads
// and handler panics are logged and dropped so one bad message never stops
// delivery for other rooms.
func dispatch(ctx context.Context, backend string, data []byte, handler Handler) {
	update, err := DecodeUpdate(data)
	if err != nil {
		log.Warn().Err(err).Str("backend", backend).Int("bytes", len(data)).Msg("dropping fan-out message")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("backend", backend).Str("slug", update.Slug).Msg("fan-out handler panicked")
		}
	}()
	handler(ctx, update)
}
