package modality

// Modality is the kind of signal a score came from. The set is closed:
// values outside [Vision, Metadata] are invalid.
type Modality uint8

// Modality constants. Order is fixed; it indexes per-modality tables.
const (
	Vision Modality = iota
	Text
	Audio
	// Metadata covers derived signals such as keyword weight.
	Metadata
)

// Count is the number of modalities.
const Count = int(Metadata) + 1

var names = [Count]string{"vision", "text", "audio", "metadata"}

// All returns every modality in table order.
func All() []Modality {
	return []Modality{Vision, Text, Audio, Metadata}
}

// IsValid checks if the modality is one of the supported values.
func (m Modality) IsValid() bool {
	return int(m) < Count
}

func (m Modality) String() string {
	if !m.IsValid() {
		return "unknown"
	}
	return names[m]
}

// Parse maps a modality name to its value.
func Parse(s string) (Modality, bool) {
	for i, n := range names {
		if n == s {
			return Modality(i), true
		}
	}
	return 0, false
}
