package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BeatsPerMeasure is either a fixed number of beats or NoEmphasis, where
// every beat sounds the same and no beat is treated as the downbeat.
// The zero value is unset.
type BeatsPerMeasure struct {
	n    int
	flat bool
}

// NoEmphasis is the flat-accent variant.
var NoEmphasis = BeatsPerMeasure{flat: true}

const noEmphasisWire = "none"

const maxBeats = math.MaxInt32

// Fixed returns a measure of n beats.
func Fixed(n int) BeatsPerMeasure {
	return BeatsPerMeasure{n: n}
}

// IsNoEmphasis reports whether the measure has no accented beat.
func (b BeatsPerMeasure) IsNoEmphasis() bool { return b.flat }

// Beats returns the fixed beat count, or 0 for NoEmphasis and unset measures.
func (b BeatsPerMeasure) Beats() int {
	if b.flat {
		return 0
	}
	return b.n
}

// Valid reports whether the measure can be assigned to a room.
func (b BeatsPerMeasure) Valid() bool {
	return b.flat || b.n > 0
}

// Modulus is the cycle length used for beat numbering. NoEmphasis counts
// in twos without accenting; an unset measure degrades to a single beat.
func (b BeatsPerMeasure) Modulus() int {
	switch {
	case b.flat:
		return 2
	case b.n > 0:
		return b.n
	default:
		return 1
	}
}

func (b BeatsPerMeasure) String() string {
	if b.flat {
		return noEmphasisWire
	}
	return strconv.Itoa(b.n)
}

// MarshalJSON encodes fixed measures as numbers and NoEmphasis as "none".
func (b BeatsPerMeasure) MarshalJSON() ([]byte, error) {
	if b.flat {
		return json.Marshal(noEmphasisWire)
	}
	return []byte(strconv.Itoa(b.n)), nil
}

// UnmarshalJSON accepts a number, a numeric string, or one of the
// no-emphasis spellings.
func (b *BeatsPerMeasure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = BeatsPerMeasure{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseBeatsPerMeasure(s)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("beatsPerMeasure: %w", err)
	}
	if f != math.Trunc(f) || f < 0 || f > maxBeats {
		// decodes as an invalid measure so the update rejects the field
		*b = Fixed(0)
		return nil
	}
	*b = Fixed(int(f))
	return nil
}

// ParseBeatsPerMeasure parses the textual forms of a measure.
func ParseBeatsPerMeasure(s string) (BeatsPerMeasure, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return BeatsPerMeasure{}, nil
	case noEmphasisWire, "no-emphasis", "noemphasis":
		return NoEmphasis, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return BeatsPerMeasure{}, fmt.Errorf("invalid beatsPerMeasure %q", s)
	}
	return Fixed(n), nil
}
