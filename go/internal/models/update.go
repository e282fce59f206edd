package models

import (
	"math"
	"sort"
)

// RoomUpdate is a partial change requested by a session. A nil field means
// the field was absent (or null) and keeps its prior value.
type RoomUpdate struct {
	BeatsPerMinute  *float64         `json:"beatsPerMinute,omitempty"`
	BeatsPerMeasure *BeatsPerMeasure `json:"beatsPerMeasure,omitempty"`
	Key             *Key             `json:"key,omitempty"`
	Muted           *bool            `json:"muted,omitempty"`
	Presets         *[]Preset        `json:"presets,omitempty"`
	StartTime       *float64         `json:"startTime,omitempty"`

	// owner only
	IsPublic *bool          `json:"isPublic,omitempty"`
	Invitees *[]InviteeView `json:"invitees,omitempty"`
}

// IsEmpty reports whether the update carries no fields at all.
func (u RoomUpdate) IsEmpty() bool {
	return u.BeatsPerMinute == nil && u.BeatsPerMeasure == nil && u.Key == nil &&
		u.Muted == nil && u.Presets == nil && u.StartTime == nil &&
		u.IsPublic == nil && u.Invitees == nil
}

// TouchesSharing reports whether the update asks for owner-only changes.
func (u RoomUpdate) TouchesSharing() bool {
	return u.IsPublic != nil || u.Invitees != nil
}

// ApplySettings copies the valid settings fields of u onto r. Invalid values
// are skipped. When tempo or measure changes and no start time is given,
// the start time moves to now so beat one lines up with the edit.
// It returns the names of the fields that were rejected.
func ApplySettings(r *Room, u RoomUpdate, now float64) (rejected []string) {
	rhythmChanged := false

	if u.BeatsPerMinute != nil {
		bpm := *u.BeatsPerMinute
		if bpm > 0 && finite(bpm) {
			if bpm != r.BeatsPerMinute {
				r.BeatsPerMinute = bpm
				rhythmChanged = true
			}
		} else {
			rejected = append(rejected, "beatsPerMinute")
		}
	}

	if u.BeatsPerMeasure != nil {
		if u.BeatsPerMeasure.Valid() {
			if *u.BeatsPerMeasure != r.BeatsPerMeasure {
				r.BeatsPerMeasure = *u.BeatsPerMeasure
				rhythmChanged = true
			}
		} else {
			rejected = append(rejected, "beatsPerMeasure")
		}
	}

	if u.Key != nil {
		if u.Key.Valid() {
			r.Key = *u.Key
		} else {
			rejected = append(rejected, "key")
		}
	}

	if u.Muted != nil {
		r.Muted = *u.Muted
	}

	if u.Presets != nil {
		r.Presets = append([]Preset{}, (*u.Presets)...)
	}

	if u.StartTime != nil {
		if finite(*u.StartTime) && *u.StartTime >= 0 {
			r.StartTime = *u.StartTime
			return rejected
		}
		rejected = append(rejected, "startTime")
	}
	if rhythmChanged {
		r.StartTime = now
	}
	return rejected
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func sortInvitees(list []InviteeView) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Email != list[j].Email {
			return list[i].Email < list[j].Email
		}
		return list[i].Role < list[j].Role
	})
}
