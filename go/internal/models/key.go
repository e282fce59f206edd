package models

// Key selects the pitch pair a client uses for ticks. It is opaque to the server
// apart from validation.
type Key string

const (
	KeyC      Key = "c"
	KeyCSharp Key = "c#"
	KeyD      Key = "d"
	KeyEFlat  Key = "eb"
	KeyE      Key = "e"
	KeyF      Key = "f"
	KeyFSharp Key = "f#"
	KeyG      Key = "g"
	KeyAFlat  Key = "ab"
	KeyA      Key = "a"
	KeyBFlat  Key = "bb"
	KeyB      Key = "b"
)

// [accented, unaccented] tone frequencies in Hz.
var keyFrequencies = map[Key][2]float64{
	KeyC:      {523.251, 261.626},
	KeyCSharp: {554.365, 277.183},
	KeyD:      {587.33, 293.665},
	KeyEFlat:  {622.254, 311.127},
	KeyE:      {659.255, 329.628},
	KeyF:      {698.456, 349.228},
	KeyFSharp: {739.989, 369.994},
	KeyG:      {783.991, 391.995},
	KeyAFlat:  {830.61, 415.305},
	KeyA:      {880.000, 440.000},
	KeyBFlat:  {932.328, 466.164},
	KeyB:      {987.767, 493.883},
}

// Keys lists the selectable keys in chromatic order.
func Keys() []Key {
	return []Key{KeyC, KeyCSharp, KeyD, KeyEFlat, KeyE, KeyF, KeyFSharp, KeyG, KeyAFlat, KeyA, KeyBFlat, KeyB}
}

// Valid reports whether k is one of the enumerated keys.
func (k Key) Valid() bool {
	_, ok := keyFrequencies[k]
	return ok
}

// Frequencies returns the accented and unaccented tone frequencies.
// Unknown keys fall back to A.
func (k Key) Frequencies() (accent, normal float64) {
	f, ok := keyFrequencies[k]
	if !ok {
		f = keyFrequencies[KeyA]
	}
	return f[0], f[1]
}
