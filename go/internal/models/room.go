package models

import (
	"encoding/json"
	"fmt"
)

// Role governs what a viewer may read and change within a room.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleMaestro   Role = "maestro"
	RoleMusician  Role = "musician"
	RoleAnonymous Role = ""
)

// Valid reports whether the role can be assigned to an invitee.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleMaestro, RoleMusician:
		return true
	}
	return false
}

// CanEditSettings reports whether the role may change tempo, measure, key, mute, presets and start time.
func (r Role) CanEditSettings() bool {
	return r == RoleOwner || r == RoleMaestro
}

// CanManageSharing reports whether the role may change isPublic and the invitee list.
func (r Role) CanManageSharing() bool {
	return r == RoleOwner
}

// Invitee is a person a room has been shared with.
type Invitee struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Preset is a saved metronome configuration.
type Preset struct {
	Title           string          `json:"title"`
	Key             Key             `json:"key"`
	BeatsPerMinute  float64         `json:"beatsPerMinute"`
	BeatsPerMeasure BeatsPerMeasure `json:"beatsPerMeasure"`
}

// Room is the durable state of one shared metronome, addressed by slug.
type Room struct {
	Slug            string             `json:"slug"`
	Title           string             `json:"title"`
	OwnerEmail      string             `json:"ownerEmail"`
	BeatsPerMinute  float64            `json:"beatsPerMinute"`
	BeatsPerMeasure BeatsPerMeasure    `json:"beatsPerMeasure"`
	Key             Key                `json:"key"`
	Muted           bool               `json:"muted"`
	StartTime       float64            `json:"startTime"` // server clock, unix ms
	Presets         []Preset           `json:"presets"`
	IsPublic        bool               `json:"isPublic"`
	Invitees        map[string]Invitee `json:"invitees"` // token -> invitee
	ConnectedTokens Presence           `json:"connectedTokens"`
}

// Default settings for a freshly created room.
const (
	DefaultBeatsPerMinute  = 120.0
	DefaultBeatsPerMeasure = 4
)

// NewRoom returns a public room with default settings and no invitees.
func NewRoom(slug, title, ownerEmail string, startTime float64) *Room {
	return &Room{
		Slug:            slug,
		Title:           title,
		OwnerEmail:      ownerEmail,
		BeatsPerMinute:  DefaultBeatsPerMinute,
		BeatsPerMeasure: Fixed(DefaultBeatsPerMeasure),
		Key:             KeyA,
		StartTime:       startTime,
		Presets:         []Preset{},
		IsPublic:        true,
		Invitees:        map[string]Invitee{},
		ConnectedTokens: Presence{},
	}
}

// RoleFor resolves a token to the role it currently holds in the room.
// Tokens that are empty or no longer present resolve to RoleAnonymous.
func (r *Room) RoleFor(token string) Role {
	if token == "" {
		return RoleAnonymous
	}
	inv, ok := r.Invitees[token]
	if !ok {
		return RoleAnonymous
	}
	return inv.Role
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	c := *r
	c.Presets = append([]Preset{}, r.Presets...)
	c.Invitees = make(map[string]Invitee, len(r.Invitees))
	for token, inv := range r.Invitees {
		c.Invitees[token] = inv
	}
	c.ConnectedTokens = append(Presence{}, r.ConnectedTokens...)
	return &c
}

// EncodeRoom serializes a room to its canonical stored form.
func EncodeRoom(r *Room) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode room %s: %w", r.Slug, err)
	}
	return data, nil
}

// DecodeRoom parses a stored room. Missing fields take their zero value and
// missing collections decode as empty, so payloads from older encodings load.
func DecodeRoom(data []byte) (*Room, error) {
	var r Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	r.normalize()
	return &r, nil
}

func (r *Room) normalize() {
	if r.Presets == nil {
		r.Presets = []Preset{}
	}
	if r.Invitees == nil {
		r.Invitees = map[string]Invitee{}
	}
	if r.ConnectedTokens == nil {
		r.ConnectedTokens = Presence{}
	}
}
