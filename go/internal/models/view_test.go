package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sharedRoom() *Room {
	room := NewRoom("jam", "Jam", "a@x.com", 1000)
	room.Invitees = map[string]Invitee{
		"o":  {Email: "a@x.com", Role: RoleOwner},
		"m1": {Email: "m1@x.com", Role: RoleMaestro},
		"u1": {Email: "u1@x.com", Role: RoleMusician},
		"u2": {Email: "u2@x.com", Role: RoleMusician},
	}
	// o twice (two tabs), a revoked token, two anonymous sessions
	room.ConnectedTokens = Presence{"o", "o", "m1", "u2", "gone", "", ""}
	return room
}

func TestSummarizePresence(t *testing.T) {
	summary := SummarizePresence(sharedRoom())

	assert.Equal(t, 2, summary.Anonymous)
	assert.Equal(t, 3, summary.Identified())
	assert.Equal(t, 5, summary.Total())
	assert.Equal(t, []string{"a@x.com"}, summary.ByRole[RoleOwner])
	assert.Equal(t, []string{"m1@x.com"}, summary.ByRole[RoleMaestro])
	assert.Equal(t, []string{"u2@x.com"}, summary.ByRole[RoleMusician])
}

func TestPresenceRemoveTakesOneOccurrence(t *testing.T) {
	p := Presence{}
	for i := 0; i < 3; i++ {
		p = p.Add("tab")
	}
	p = p.Add("")

	p, ok := p.Remove("tab")
	require.True(t, ok)
	assert.Equal(t, Presence{"tab", "tab", ""}, p)

	p, ok = p.Remove("missing")
	assert.False(t, ok)
	assert.Len(t, p, 3)

	p, _ = p.Remove("")
	p, _ = p.Remove("tab")
	p, _ = p.Remove("tab")
	assert.Empty(t, p)
}

func TestPublicViewHidesIdentity(t *testing.T) {
	view := ViewFor(sharedRoom(), RoleAnonymous)

	assert.Nil(t, view.Role)
	require.NotNil(t, view.Settings)
	assert.Equal(t, 120.0, view.BeatsPerMinute)
	require.NotNil(t, view.Connections)
	assert.Equal(t, 5, view.Connections.Total)
	assert.Equal(t, 2, view.Connections.Anonymous)
	assert.Equal(t, 3, view.Connections.Identified)
	assert.Nil(t, view.Connections.Owners)
	assert.Nil(t, view.Invitees)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, `"role":null`)
	assert.NotContains(t, body, "@x.com")
	assert.NotContains(t, body, "invitees")
	assert.NotContains(t, body, "maestros")
}

func TestMemberViewsCarryCounts(t *testing.T) {
	for _, role := range []Role{RoleMaestro, RoleMusician} {
		t.Run(string(role), func(t *testing.T) {
			view := ViewFor(sharedRoom(), role)

			require.NotNil(t, view.Role)
			assert.Equal(t, role, *view.Role)
			require.NotNil(t, view.Connections.Owners)
			assert.Equal(t, 1, *view.Connections.Owners)
			assert.Equal(t, 1, *view.Connections.Maestros)
			assert.Equal(t, 1, *view.Connections.Musicians)
			assert.Nil(t, view.Connections.OwnerEmails)
			assert.Nil(t, view.Invitees)

			data, err := json.Marshal(view)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "@x.com")
		})
	}
}

func TestOwnerViewListsInvitees(t *testing.T) {
	view := ViewFor(sharedRoom(), RoleOwner)

	assert.Equal(t, RoleOwner, view.ViewerRole())
	assert.Equal(t, []string{"a@x.com"}, view.Connections.OwnerEmails)
	assert.Equal(t, []string{"m1@x.com"}, view.Connections.MaestroEmails)
	assert.Equal(t, []string{"u2@x.com"}, view.Connections.MusicianEmails)
	assert.Equal(t, []InviteeView{
		{Email: "a@x.com", Role: RoleOwner},
		{Email: "m1@x.com", Role: RoleMaestro},
		{Email: "u1@x.com", Role: RoleMusician},
		{Email: "u2@x.com", Role: RoleMusician},
	}, view.Invitees)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"u1"`)
}

func TestPrivateRoomRestrictsAnonymous(t *testing.T) {
	room := sharedRoom()
	room.IsPublic = false

	view := ViewFor(room, RoleAnonymous)
	assert.Nil(t, view.Settings)
	assert.Nil(t, view.Connections)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":null,"slug":"jam","title":"Jam","isPublic":false}`, string(data))

	member := ViewFor(room, RoleMusician)
	assert.NotNil(t, member.Settings)
}

func TestViewDecodesOnClient(t *testing.T) {
	data, err := json.Marshal(ViewFor(sharedRoom(), RoleMaestro))
	require.NoError(t, err)

	var view RoomView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, RoleMaestro, view.ViewerRole())
	require.NotNil(t, view.Settings)
	assert.Equal(t, Fixed(4), view.BeatsPerMeasure)
	assert.Equal(t, 1000.0, view.StartTime)
}
