package domain

// LayerSettings is the user-configurable layer visibility snapshot. The
// rendering pipeline treats it as immutable per render cycle; a change
// notification replaces the whole snapshot, never a single field.
type LayerSettings struct {
	Enabled bool `json:"enabled"`
	Opacity int  `json:"opacity"` // percent, 0-100

	RailLines      bool `json:"rail_lines"`
	RailStations   bool `json:"rail_stations"`
	LightRailLines bool `json:"light_rail_lines"`
	LightRailStops bool `json:"light_rail_stops"`

	// Rail sub-toggles: the DART line label versus everything else. Both
	// lines and stations pass through these before layer collection.
	RailDart  bool `json:"rail_dart"`
	RailOther bool `json:"rail_other"`

	// Walking-radius rings shown on marker hover, independently toggleable.
	Ring5  bool `json:"ring_5"`
	Ring10 bool `json:"ring_10"`
	Ring15 bool `json:"ring_15"`
}

// DefaultSettings returns the snapshot used when the store has no value,
// and the base a stored partial snapshot is merged onto.
func DefaultSettings() LayerSettings {
	return LayerSettings{
		Enabled:        true,
		Opacity:        80,
		RailLines:      true,
		RailStations:   true,
		LightRailLines: true,
		LightRailStops: true,
		RailDart:       true,
		RailOther:      true,
		Ring5:          true,
		Ring10:         true,
		Ring15:         true,
	}
}

// Clamp normalises out-of-range values after decoding an external snapshot.
func (s LayerSettings) Clamp() LayerSettings {
	if s.Opacity < 0 {
		s.Opacity = 0
	}
	if s.Opacity > 100 {
		s.Opacity = 100
	}
	return s
}

// WalkingRing is one fixed-time walking-distance ring around a station.
type WalkingRing struct {
	Minutes int
	Meters  float64
}

// WalkingRings lists the three rings in drawing order, innermost first.
// Radii assume 72 m/min walking speed.
var WalkingRings = []WalkingRing{
	{Minutes: 5, Meters: 360},
	{Minutes: 10, Meters: 720},
	{Minutes: 15, Meters: 1080},
}

// RingEnabled reports whether the ring for the given minute value is on.
func (s LayerSettings) RingEnabled(minutes int) bool {
	switch minutes {
	case 5:
		return s.Ring5
	case 10:
		return s.Ring10
	case 15:
		return s.Ring15
	default:
		return false
	}
}
