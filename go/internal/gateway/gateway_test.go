package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/metronome/go/internal/fanout"
	"github.com/mcdev12/metronome/go/internal/models"
	"github.com/mcdev12/metronome/go/internal/rooms"
)

var epoch = time.UnixMilli(1_700_000_000_000)

type harness struct {
	app     *rooms.App
	clock   *clockwork.FakeClock
	server  *httptest.Server
	service *Service
	cookies CookieConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	bus := fanout.NewMemoryBus("test", clock)
	app := rooms.NewApp(rooms.NewMemoryRepository(), bus, nil, clock)

	var mu sync.Mutex
	n := 0
	app.SetTokenGenerator(func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("token-%d", n), nil
	})

	config := DefaultConfig()
	svc := NewService(config, app, bus, clock)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		_ = svc.Stop()
		cancel()
		_ = bus.Close()
	})

	return &harness{app: app, clock: clock, server: server, service: svc, cookies: config.CookieConfig}
}

func (h *harness) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + path
}

func (h *harness) createJam(t *testing.T) string {
	t.Helper()
	res, err := h.app.CreateRoom(context.Background(), rooms.CreateRoomRequest{Slug: "jam", Title: "Jam", OwnerEmail: "a@x.com"})
	require.NoError(t, err)
	return res.OwnerToken
}

func (h *harness) dial(t *testing.T, slug, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", h.cookies.Name(slug)+"="+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/info?slug="+slug), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return data
}

func readView(t *testing.T, conn *websocket.Conn) (models.RoomView, string) {
	t.Helper()
	data := readRaw(t, conn)
	var view models.RoomView
	require.NoError(t, json.Unmarshal(data, &view))
	return view, string(data)
}

// readUntil skips views (fan-out pushes arrive in any order relative to
// direct replies) until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(models.RoomView) bool) (models.RoomView, string) {
	t.Helper()
	for i := 0; i < 20; i++ {
		view, raw := readView(t, conn)
		if match(view) {
			return view, raw
		}
	}
	t.Fatal("no matching view received")
	return models.RoomView{}, ""
}

func connectedTokens(t *testing.T, h *harness, slug string) models.Presence {
	t.Helper()
	room, err := h.app.GetRoom(context.Background(), slug)
	require.NoError(t, err)
	return room.ConnectedTokens
}

func TestJamScenario(t *testing.T) {
	h := newHarness(t)
	ownerToken := h.createJam(t)

	owner := h.dial(t, "jam", ownerToken)
	first, _ := readView(t, owner)
	assert.Equal(t, models.RoleOwner, first.ViewerRole())
	require.Len(t, first.Invitees, 1)

	require.NoError(t, owner.WriteJSON(map[string]any{"beatsPerMinute": 140}))
	updated, _ := readUntil(t, owner, func(v models.RoomView) bool {
		return v.Settings != nil && v.BeatsPerMinute == 140
	})
	assert.Equal(t, models.RoleOwner, updated.ViewerRole())
	assert.Equal(t, models.Millis(epoch), updated.StartTime)

	anon := h.dial(t, "jam", "")
	view, raw := readUntil(t, anon, func(v models.RoomView) bool {
		return v.Connections != nil && v.Connections.Anonymous == 1
	})
	assert.Nil(t, view.Role)
	require.NotNil(t, view.Settings)
	assert.Equal(t, 140.0, view.BeatsPerMinute)
	assert.Equal(t, 2, view.Connections.Total)
	assert.Equal(t, 1, view.Connections.Identified)
	assert.Nil(t, view.Connections.Owners)
	assert.Nil(t, view.Invitees)
	assert.NotContains(t, raw, "a@x.com")
	assert.NotContains(t, raw, ownerToken)

	// the owner hears about the new listener through fan-out
	ownerView, _ := readUntil(t, owner, func(v models.RoomView) bool {
		return v.Connections != nil && v.Connections.Anonymous == 1
	})
	assert.Equal(t, []string{"a@x.com"}, ownerView.Connections.OwnerEmails)
}

func TestRevokedTokenIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ownerToken := h.createJam(t)

	res, err := h.app.ApplyUpdate(ctx, "jam", ownerToken, models.RoomUpdate{Invitees: &[]models.InviteeView{
		{Email: "a@x.com", Role: models.RoleOwner},
		{Email: "b@x.com", Role: models.RoleMaestro},
	}})
	require.NoError(t, err)
	require.Len(t, res.Invited, 1)
	bToken := res.Invited[0].Token

	b := h.dial(t, "jam", bToken)
	first, _ := readView(t, b)
	assert.Equal(t, models.RoleMaestro, first.ViewerRole())

	_, err = h.app.ApplyUpdate(ctx, "jam", ownerToken, models.RoomUpdate{Invitees: &[]models.InviteeView{
		{Email: "a@x.com", Role: models.RoleOwner},
	}})
	require.NoError(t, err)

	// fan-out downgrades the open session as soon as the token is gone
	readUntil(t, b, func(v models.RoomView) bool { return v.Role == nil })

	require.NoError(t, b.WriteJSON(map[string]any{"beatsPerMinute": 60, "muted": true}))
	reply, raw := readView(t, b)
	assert.Nil(t, reply.Role)
	require.NotNil(t, reply.Settings)
	assert.Equal(t, 120.0, reply.BeatsPerMinute)
	assert.False(t, reply.Muted)
	assert.NotContains(t, raw, "b@x.com")

	room, err := h.app.GetRoom(ctx, "jam")
	require.NoError(t, err)
	assert.Equal(t, 120.0, room.BeatsPerMinute)
	assert.False(t, room.Muted)
}

func TestMusicianCannotMutate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ownerToken := h.createJam(t)

	res, err := h.app.ApplyUpdate(ctx, "jam", ownerToken, models.RoomUpdate{Invitees: &[]models.InviteeView{
		{Email: "a@x.com", Role: models.RoleOwner},
		{Email: "u@x.com", Role: models.RoleMusician},
	}})
	require.NoError(t, err)
	musician := h.dial(t, "jam", res.Invited[0].Token)
	first, _ := readView(t, musician)
	assert.Equal(t, models.RoleMusician, first.ViewerRole())
	require.NotNil(t, first.Connections.Musicians)

	before, err := h.app.GetRoom(ctx, "jam")
	require.NoError(t, err)

	require.NoError(t, musician.WriteJSON(map[string]any{
		"beatsPerMinute": 200, "beatsPerMeasure": "none", "key": "c", "muted": true,
		"presets": []any{}, "startTime": 5, "isPublic": false,
		"invitees": []any{map[string]string{"email": "u@x.com", "role": "owner"}},
	}))
	readUntil(t, musician, func(v models.RoomView) bool { return v.Role == nil })

	after, err := h.app.GetRoom(ctx, "jam")
	require.NoError(t, err)
	after.ConnectedTokens = before.ConnectedTokens
	assert.Equal(t, before, after)
}

func TestMalformedMessageGetsPublicView(t *testing.T) {
	h := newHarness(t)
	owner := h.dial(t, "jam", h.createJam(t))
	readView(t, owner)

	require.NoError(t, owner.WriteMessage(websocket.TextMessage, []byte("tempo please")))
	view, _ := readUntil(t, owner, func(v models.RoomView) bool { return v.Role == nil })
	assert.Nil(t, view.Invitees)

	// the session stays usable
	require.NoError(t, owner.WriteJSON(map[string]any{"key": "d"}))
	view, _ = readUntil(t, owner, func(v models.RoomView) bool { return v.Role != nil && v.Key == models.KeyD })
	assert.Equal(t, models.RoleOwner, view.ViewerRole())
}

func TestPresenceAcrossTabs(t *testing.T) {
	h := newHarness(t)
	ownerToken := h.createJam(t)

	tabs := []*websocket.Conn{h.dial(t, "jam", ownerToken), h.dial(t, "jam", ownerToken), h.dial(t, "jam", "")}
	for _, tab := range tabs {
		readView(t, tab)
	}
	assert.ElementsMatch(t, models.Presence{ownerToken, ownerToken, ""}, connectedTokens(t, h, "jam"))

	require.NoError(t, tabs[0].Close())
	require.Eventually(t, func() bool {
		return len(connectedTokens(t, h, "jam")) == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, models.Presence{ownerToken, ""}, connectedTokens(t, h, "jam"))

	require.NoError(t, tabs[1].Close())
	require.NoError(t, tabs[2].Close())
	require.Eventually(t, func() bool {
		return len(connectedTokens(t, h, "jam")) == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return h.service.GetStats()["total_connections"] == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSessionsWithoutRoomAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.createJam(t)

	for _, path := range []string{"/info", "/info?slug=nope"} {
		t.Run(path, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(path), nil)
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
			_, _, err = conn.ReadMessage()
			var netErr interface{ Timeout() bool }
			require.ErrorAs(t, err, &netErr)
			assert.True(t, netErr.Timeout())
		})
	}

	assert.Empty(t, connectedTokens(t, h, "jam"))
	assert.Equal(t, 0, h.service.GetStats()["total_connections"])

	_, err := h.app.GetRoom(context.Background(), "nope")
	assert.ErrorIs(t, err, rooms.ErrRoomNotFound)
}

func TestSlowConnectionIsClosed(t *testing.T) {
	config := DefaultConnectionConfig()
	config.SendBufferSize = 1
	cm := NewConnectionManager(config)

	conns := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := cm.Upgrade(w, r, "jam", "")
		if err != nil {
			return
		}
		cm.Register(c)
		conns <- c
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	c := <-conns
	require.Len(t, cm.Connections("jam"), 1)

	assert.True(t, c.Push([]byte(`1`)))
	assert.False(t, c.Push([]byte(`2`)))
	assert.Empty(t, cm.Connections("jam"))
	assert.False(t, c.Push([]byte(`3`)))
	c.Close()
}
