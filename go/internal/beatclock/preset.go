package beatclock

import "github.com/mcdev12/metronome/go/internal/models"

// LoadPreset builds the update that switches a room to p, restarting the
// measure at serverNow.
func LoadPreset(p models.Preset, serverNow float64) models.RoomUpdate {
	key, bpm, measure, start := p.Key, p.BeatsPerMinute, p.BeatsPerMeasure, serverNow
	return models.RoomUpdate{
		Key:             &key,
		BeatsPerMinute:  &bpm,
		BeatsPerMeasure: &measure,
		StartTime:       &start,
	}
}

// SavePreset appends the current settings to presets under title.
func SavePreset(presets []models.Preset, title string, s models.Settings) []models.Preset {
	out := append([]models.Preset{}, presets...)
	return append(out, models.Preset{
		Title:           title,
		Key:             s.Key,
		BeatsPerMinute:  s.BeatsPerMinute,
		BeatsPerMeasure: s.BeatsPerMeasure,
	})
}

// DeletePreset removes the preset at index i. Out of range indexes leave
// the list unchanged.
func DeletePreset(presets []models.Preset, i int) []models.Preset {
	if i < 0 || i >= len(presets) {
		return presets
	}
	out := append([]models.Preset{}, presets[:i]...)
	return append(out, presets[i+1:]...)
}
