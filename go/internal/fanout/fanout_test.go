package fanout

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/metronome/go/internal/models"
)

func collect(t *testing.T, bus Bus) <-chan Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	got := make(chan Update, 16)
	sub, err := bus.Subscribe(ctx, func(_ context.Context, u Update) {
		if u.Slug == "explode" {
			panic("handler bug")
		}
		got <- u
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	return got
}

func receive(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestDecodeUpdate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "slug only", payload: `{"slug":"jam"}`},
		{name: "full state", payload: `{"slug":"jam","room":{"slug":"jam","beatsPerMinute":90}}`},
		{name: "not json", payload: `jam`, wantErr: true},
		{name: "no slug", payload: `{"room":{"slug":"jam"}}`, wantErr: true},
		{name: "slug mismatch", payload: `{"slug":"jam","room":{"slug":"other"}}`, wantErr: true},
		{name: "wrong types", payload: `{"slug":7}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, err := DecodeUpdate([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedUpdate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "jam", update.Slug)
		})
	}
}

func TestMemoryBusSurvivesBadMessages(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := NewMemoryBus("instance-a", clock)
	defer bus.Close()
	got := collect(t, bus)

	bus.PublishRaw([]byte(`{{{`))
	require.NoError(t, bus.Publish(context.Background(), models.NewRoom("explode", "", "", 0)))
	bus.PublishRaw([]byte(`{"slug":""}`))
	require.NoError(t, bus.Publish(context.Background(), models.NewRoom("jam", "Jam", "", 0)))

	update := receive(t, got)
	assert.Equal(t, "jam", update.Slug)
	assert.Equal(t, "instance-a", update.Origin)
	assert.True(t, clock.Now().Equal(update.PublishedAt))
	require.NotNil(t, update.Room)
	assert.Equal(t, "Jam", update.Room.Title)
}

func TestMemoryBusFansOutToEverySubscriber(t *testing.T) {
	bus := NewMemoryBus("a", nil)
	defer bus.Close()
	first := collect(t, bus)
	second := collect(t, bus)

	require.NoError(t, bus.Publish(context.Background(), models.NewRoom("jam", "", "", 0)))
	assert.Equal(t, "jam", receive(t, first).Slug)
	assert.Equal(t, "jam", receive(t, second).Slug)
}

func TestRedisBus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	publisher := NewRedisBus(client, "", "instance-a", nil)
	subscriber := NewRedisBus(client, "", "instance-b", nil)
	got := collect(t, subscriber)

	mr.Publish(DefaultChannel, "garbage")
	require.NoError(t, publisher.Publish(context.Background(), models.NewRoom("jam", "", "", 0)))

	update := receive(t, got)
	assert.Equal(t, "jam", update.Slug)
	assert.Equal(t, "instance-a", update.Origin)
}

func TestNATSBus(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	config := DefaultNATSConfig()
	config.URL = url
	config.Subject = "metronome-updates-test"
	config.Origin = "test"
	bus, err := NewNATSBus(config, nil)
	require.NoError(t, err)
	defer bus.Close()
	got := collect(t, bus)

	require.NoError(t, bus.nc.Publish(config.Subject, []byte("not json")))
	require.NoError(t, bus.Publish(context.Background(), models.NewRoom("jam", "", "", 0)))
	assert.Equal(t, "jam", receive(t, got).Slug)
}
