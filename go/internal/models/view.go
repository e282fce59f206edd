package models

// RoomView is what a session receives. Its shape depends on the viewer's role:
//   - public (role null): settings plus total/anonymous/identified counts
//   - musician, maestro: adds per-role counts
//   - owner: adds per-role email lists and the invitee list
//
// Anonymous viewers of a private room get only the header fields.
type RoomView struct {
	Role     *Role  `json:"role"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	IsPublic bool   `json:"isPublic"`
	*Settings
	Connections *Connections  `json:"connections,omitempty"`
	Invitees    []InviteeView `json:"invitees,omitempty"`
}

// Settings are the fields that drive the beat clock.
type Settings struct {
	BeatsPerMinute  float64         `json:"beatsPerMinute"`
	BeatsPerMeasure BeatsPerMeasure `json:"beatsPerMeasure"`
	Key             Key             `json:"key"`
	Muted           bool            `json:"muted"`
	StartTime       float64         `json:"startTime"`
	Presets         []Preset        `json:"presets"`
}

// Connections summarizes presence without exposing tokens.
type Connections struct {
	Total      int `json:"total"`
	Anonymous  int `json:"anonymous"`
	Identified int `json:"identified"`

	Owners    *int `json:"owners,omitempty"`
	Maestros  *int `json:"maestros,omitempty"`
	Musicians *int `json:"musicians,omitempty"`

	OwnerEmails    []string `json:"ownerEmails,omitempty"`
	MaestroEmails  []string `json:"maestroEmails,omitempty"`
	MusicianEmails []string `json:"musicianEmails,omitempty"`
}

// InviteeView is an invitee as shown to the owner. Tokens are never sent.
type InviteeView struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// ViewerRole returns the role a view was shaped for, RoleAnonymous for public views.
func (v *RoomView) ViewerRole() Role {
	if v.Role == nil {
		return RoleAnonymous
	}
	return *v.Role
}

// PublicView projects a room for an anonymous viewer.
func PublicView(r *Room) *RoomView {
	view := &RoomView{
		Slug:     r.Slug,
		Title:    r.Title,
		IsPublic: r.IsPublic,
	}
	if !r.IsPublic {
		return view
	}

	summary := SummarizePresence(r)
	view.Settings = settingsOf(r)
	view.Connections = &Connections{
		Total:      summary.Total(),
		Anonymous:  summary.Anonymous,
		Identified: summary.Identified(),
	}
	return view
}

// ViewFor projects a room for the given role.
func ViewFor(r *Room, role Role) *RoomView {
	if !role.Valid() {
		return PublicView(r)
	}

	summary := SummarizePresence(r)
	owners := len(summary.ByRole[RoleOwner])
	maestros := len(summary.ByRole[RoleMaestro])
	musicians := len(summary.ByRole[RoleMusician])

	viewRole := role
	view := &RoomView{
		Role:     &viewRole,
		Slug:     r.Slug,
		Title:    r.Title,
		IsPublic: r.IsPublic,
		Settings: settingsOf(r),
		Connections: &Connections{
			Total:      summary.Total(),
			Anonymous:  summary.Anonymous,
			Identified: summary.Identified(),
			Owners:     &owners,
			Maestros:   &maestros,
			Musicians:  &musicians,
		},
	}
	if role != RoleOwner {
		return view
	}

	view.Connections.OwnerEmails = summary.ByRole[RoleOwner]
	view.Connections.MaestroEmails = summary.ByRole[RoleMaestro]
	view.Connections.MusicianEmails = summary.ByRole[RoleMusician]
	view.Invitees = inviteeList(r)
	return view
}

func settingsOf(r *Room) *Settings {
	return &Settings{
		BeatsPerMinute:  r.BeatsPerMinute,
		BeatsPerMeasure: r.BeatsPerMeasure,
		Key:             r.Key,
		Muted:           r.Muted,
		StartTime:       r.StartTime,
		Presets:         append([]Preset{}, r.Presets...),
	}
}

func inviteeList(r *Room) []InviteeView {
	out := make([]InviteeView, 0, len(r.Invitees))
	for _, inv := range r.Invitees {
		out = append(out, InviteeView{Email: inv.Email, Role: inv.Role})
	}
	sortInvitees(out)
	return out
}
