package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/metronome/go/internal/models"
)

func TestTimeEcho(t *testing.T) {
	h := newHarness(t)

	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL("/time"), nil)
	require.NoError(t, err)
	defer conn.Close()

	now := models.Millis(epoch)
	read := func() TimeEcho {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var echo TimeEcho
		require.NoError(t, conn.ReadJSON(&echo))
		return echo
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("1000")))
	echo := read()
	assert.Equal(t, now, echo.Time)
	assert.Equal(t, now-1000, echo.Offset)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	h.clock.Advance(250 * time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(" 2000.5 ")))
	echo = read()
	assert.Equal(t, now+250, echo.Time)
	assert.Equal(t, now+250-2000.5, echo.Offset)
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func TestRoomHTTPAPI(t *testing.T) {
	h := newHarness(t)
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Post(h.server.URL+"/api/rooms", "application/json",
		strings.NewReader(`{"slug":"Jam","title":"Jam","ownerEmail":"a@x.com"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ownerCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == h.cookies.Name("jam") {
			ownerCookie = c
		}
	}
	require.NotNil(t, ownerCookie)
	assert.True(t, ownerCookie.HttpOnly)

	resp, err = client.Post(h.server.URL+"/api/rooms", "application/json",
		strings.NewReader(`{"slug":"jam","ownerEmail":"b@x.com"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = client.Post(h.server.URL+"/api/rooms", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// join with the owner token
	resp, err = client.Get(h.server.URL + "/api/rooms/jam/join?token=" + ownerCookie.Value)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/jam", resp.Header.Get("Location"))

	resp, err = client.Get(h.server.URL + "/api/rooms/jam/join?token=forged")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = client.Get(h.server.URL + "/api/rooms/nope/join?token=x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// state as owner and as a stranger
	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/api/rooms/jam/state", nil)
	require.NoError(t, err)
	req.AddCookie(ownerCookie)
	resp, err = client.Do(req)
	require.NoError(t, err)
	var ownerView models.RoomView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ownerView))
	resp.Body.Close()
	assert.Equal(t, models.RoleOwner, ownerView.ViewerRole())
	assert.Equal(t, []models.InviteeView{{Email: "a@x.com", Role: models.RoleOwner}}, ownerView.Invitees)

	resp, err = client.Get(h.server.URL + "/api/rooms/jam/state")
	require.NoError(t, err)
	var publicView models.RoomView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&publicView))
	resp.Body.Close()
	assert.Nil(t, publicView.Role)
	assert.Nil(t, publicView.Invitees)

	resp, err = client.Get(h.server.URL + "/ws/stats")
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var stats struct {
		TotalConnections int            `json:"total_connections"`
		ActiveRooms      int            `json:"active_rooms"`
		RoomConnections  map[string]int `json:"room_connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, 0, stats.TotalConnections)
	assert.Equal(t, 0, stats.ActiveRooms)
	assert.Empty(t, stats.RoomConnections)
}

func TestCookieConfig(t *testing.T) {
	cookies := DefaultCookieConfig()

	rec := httptest.NewRecorder()
	cookies.Set(rec, "jam", "tok")
	req := httptest.NewRequest(http.MethodGet, "/info?slug=jam", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	assert.Equal(t, "tok", cookies.Token(req, "jam"))
	assert.Equal(t, "", cookies.Token(req, "other"))
	assert.Equal(t, "", cookies.Token(req, ""))
}
